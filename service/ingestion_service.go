package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/voteflow/ballotpipe/api"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/config"
	"github.com/voteflow/ballotpipe/credentialstore"
)

// IngestionService owns the ingestion front-end's connections to the bus,
// credential store, and audit store, and the HTTP server built on top of
// them.
type IngestionService struct {
	cfg *config.Config

	mu     sync.Mutex
	cancel context.CancelFunc

	bus   *bus.Bus
	cred  *credentialstore.Store
	audit *auditstore.Store
	api   *api.API
}

// NewIngestion creates a new IngestionService instance.
func NewIngestion(cfg *config.Config) *IngestionService {
	return &IngestionService{cfg: cfg}
}

// Start connects to the bus, credential store, and audit store, then
// begins serving HTTP. It returns an error if the service is already
// running or any connection fails.
func (s *IngestionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("ingestion service already running")
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

	a, err := api.New(&api.Config{
		Host:                  s.cfg.HTTPHost,
		Port:                  s.cfg.HTTPPort,
		Bus:                   b,
		CredentialStore:       cred,
		AuditStore:            audit,
		PublishConfirmTimeout: s.cfg.PublishConfirmTimeout,
		RequestDeadline:       s.cfg.RequestDeadline,
	})
	if err != nil {
		b.Close()
		cred.Close()
		audit.Close()
		return fmt.Errorf("start ingestion server: %w", err)
	}

	s.bus, s.cred, s.audit, s.api, s.cancel = b, cred, audit, a, cancel
	return nil
}

// Router exposes the running API instance for testing purposes.
func (s *IngestionService) Router() *api.API {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api
}

// Stop releases the service's bus, credential-store, and audit-store
// connections. The HTTP listener started by api.New is not shut down and
// keeps accepting requests.
func (s *IngestionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil

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
