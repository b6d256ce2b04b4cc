package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/voteflow/ballotpipe/aggregator"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
)

// AggregatorService owns the aggregation service's connections to the
// bus and the audit & tally store.
type AggregatorService struct {
	cfg *config.Config

	mu     sync.Mutex
	cancel context.CancelFunc

	bus   *bus.Bus
	audit *auditstore.Store
	agg   *aggregator.Aggregator
}

// NewAggregator creates a new AggregatorService instance.
func NewAggregator(cfg *config.Config) *AggregatorService {
	return &AggregatorService{cfg: cfg}
}

// Start connects to the bus and the audit & tally store, applies the
// schema, and begins consuming the aggregation stream.
func (s *AggregatorService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("aggregator service already running")
	}
	_, cancel := context.WithCancel(ctx)

	b, err := bus.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	audit, err := auditstore.Connect(s.cfg)
	if err != nil {
		b.Close()
		return fmt.Errorf("connect to audit store: %w", err)
	}
	if err := audit.InitSchema(ctx); err != nil {
		b.Close()
		audit.Close()
		return fmt.Errorf("apply audit store schema: %w", err)
	}

	agg := aggregator.New(b, audit, s.cfg)
	if err := agg.Start(); err != nil {
		b.Close()
		audit.Close()
		return fmt.Errorf("start aggregator: %w", err)
	}

	s.bus, s.audit, s.agg, s.cancel = b, audit, agg, cancel
	return nil
}

// Stop flushes the aggregator's buffer and releases its connections.
func (s *AggregatorService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil

	if s.agg != nil {
		_ = s.agg.Stop()
	}
	if s.audit != nil {
		s.audit.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
}
