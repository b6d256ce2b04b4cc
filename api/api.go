package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/voteflow/ballotpipe/auditstore"
	"github.com/voteflow/ballotpipe/bus"
	"github.com/voteflow/ballotpipe/credentialstore"
	"github.com/voteflow/ballotpipe/log"
	"github.com/voteflow/ballotpipe/types"
)

// electionWindowRefreshInterval is how often the ingestion front-end
// refreshes its in-memory election-window cache from the tally store
// (spec section 4.1: "this check may consult a cached election-window
// map refreshed periodically from the tally store").
const electionWindowRefreshInterval = 30 * time.Second

// Config carries everything the ingestion front-end needs to serve
// requests. It holds no voting state of its own beyond the
// election-window cache.
type Config struct {
	Host string
	Port int

	Bus             *bus.Bus
	CredentialStore *credentialstore.Store
	AuditStore      *auditstore.Store

	PublishConfirmTimeout time.Duration
	RequestDeadline       time.Duration
}

// API is the stateless ingestion front-end (spec section 4.1).
type API struct {
	router *chi.Mux
	cfg    *Config

	windowsMu sync.RWMutex
	windows   map[int64]*types.ElectionWindow
}

// New builds the router and starts serving on cfg.Host:cfg.Port. The
// election-window cache is populated once synchronously before New
// returns, then refreshed on a background ticker.
func New(cfg *Config) (*API, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("missing bus instance")
	}
	if cfg.CredentialStore == nil {
		return nil, fmt.Errorf("missing credential store instance")
	}
	if cfg.AuditStore == nil {
		return nil, fmt.Errorf("missing audit store instance")
	}
	a := &API{cfg: cfg, windows: make(map[int64]*types.ElectionWindow)}

	if err := a.refreshElectionWindows(context.Background()); err != nil {
		log.Warnw("initial election window load failed, starting with an empty cache", "error", err)
	}
	go a.windowRefreshLoop()

	a.initRouter()
	go func() {
		log.Infow("starting ingestion server", "host", cfg.Host, "port", cfg.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), a.router); err != nil {
			log.Fatalf("ingestion server failed: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes.
func (a *API) Router() *chi.Mux {
	return a.router
}

func (a *API) windowRefreshLoop() {
	ticker := time.NewTicker(electionWindowRefreshInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := a.refreshElectionWindows(context.Background()); err != nil {
			log.Warnw("election window refresh failed", "error", err)
		}
	}
}

func (a *API) refreshElectionWindows(ctx context.Context) error {
	windows, err := a.cfg.AuditStore.LoadElectionWindows(ctx)
	if err != nil {
		return err
	}
	a.windowsMu.Lock()
	a.windows = windows
	a.windowsMu.Unlock()
	return nil
}

func (a *API) electionWindow(electionID int64) (*types.ElectionWindow, bool) {
	a.windowsMu.RLock()
	defer a.windowsMu.RUnlock()
	w, ok := a.windows[electionID]
	return w, ok
}

func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", HealthEndpoint, "method", "GET")
	a.router.Get(HealthEndpoint, a.health)

	log.Infow("register handler", "endpoint", VoteEndpoint, "method", "POST")
	a.router.Post(VoteEndpoint, a.newLawVote)

	log.Infow("register handler", "endpoint", ElectionVoteEndpoint, "method", "POST")
	a.router.Post(ElectionVoteEndpoint, a.newElectionVote)

	log.Infow("register handler", "endpoint", LawResultsEndpoint, "method", "GET")
	a.router.Get(LawResultsEndpoint, a.lawResults)

	log.Infow("register handler", "endpoint", ElectionResultsEndpoint, "method", "GET")
	a.router.Get(ElectionResultsEndpoint, a.electionResults)
}

// bufPool is a pool of bytes.Buffer to reduce logger allocations.
var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func (a *API) initRouter() {
	logHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Vote bodies carry the raw nas/code and are never logged.
			if log.Level() != "debug" || r.URL.Path == HealthEndpoint ||
				r.URL.Path == VoteEndpoint || r.URL.Path == ElectionVoteEndpoint {
				next.ServeHTTP(w, r)
				return
			}

			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unable to read request body", http.StatusInternalServerError)
				bufPool.Put(buf)
				return
			}
			buf.Write(bodyBytes)

			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"body", strings.ReplaceAll(buf.String(), "\"", ""),
			)

			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bufPool.Put(buf)

			next.ServeHTTP(w, r)
		})
	}

	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)
	a.router.Use(logHandler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(a.cfg.RequestDeadline))

	a.registerHandlers()
}
