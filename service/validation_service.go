package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/credentialstore"
	"github.com/voteflow/ballotpipe/worker"
)

// ValidationService owns one validation worker pool process's connections
// and its bus subscription.
type ValidationService struct {
	cfg *config.Config

	mu     sync.Mutex
	cancel context.CancelFunc

	bus    *bus.Bus
	cred   *credentialstore.Store
	audit  *auditstore.Store
	worker *worker.Worker
}

// NewValidation creates a new ValidationService instance.
func NewValidation(cfg *config.Config) *ValidationService {
	return &ValidationService{cfg: cfg}
}

// Start connects to the bus, credential store, and audit store, then
// begins consuming the validation stream.
func (s *ValidationService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("validation service already running")
	}
	_, cancel := context.WithCancel(ctx)

	b, err := bus.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	cred, err := credentialstore.Connect(s.cfg)
	if err != nil {
		b.Close()
		return fmt.Errorf("connect to credential store: %w", err)
	}
	audit, err := auditstore.Connect(s.cfg)
	if err != nil {
		b.Close()
		cred.Close()
		return fmt.Errorf("connect to audit store: %w", err)
	}

	w := worker.New(b, cred, audit, s.cfg)
	if err := w.Start(); err != nil {
		b.Close()
		cred.Close()
		audit.Close()
		return fmt.Errorf("start validation worker: %w", err)
	}

	s.bus, s.cred, s.audit, s.worker, s.cancel = b, cred, audit, w, cancel
	return nil
}

// Stop drains the worker's subscription and releases its connections.
func (s *ValidationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil

	if s.worker != nil {
		_ = s.worker.Stop()
	}
	if s.audit != nil {
		s.audit.Close()
	}
	if s.cred != nil {
		s.cred.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
}
