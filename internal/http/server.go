package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"tucano/internal/cache"
	"tucano/internal/core"
	"tucano/internal/log"
	"tucano/internal/middleware/auth"
	"tucano/internal/middleware/ratelimit"
	"tucano/internal/middleware/security"
	"tucano/internal/middleware/trace"
	"tucano/internal/repository"
	"tucano/internal/services"
	"tucano/internal/state"
)

// cacheCleanupInterval is how often idle state containers are swept.
const cacheCleanupInterval = 5 * time.Minute

// HealthChecker reports whether the storage backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers work with.
type Deps struct {
	Repo         *repository.Repository
	Transactions *services.TransactionService
	Credit       *services.CreditScheduler
	State        *state.Manager
	Auth         *auth.Authenticator
	Health       HealthChecker

	// IssueTokens exposes POST /api/auth/token. It needs a signing secret.
	IssueTokens bool
	// RateLimit is the per-client budget per minute, 120 when zero.
	RateLimit int
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *log.Logger
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware
	detector *security.Detector
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Auth == nil {
		deps.Auth = auth.New("", 0, auth.WithLogger(deps.Logger))
	}

	detector := security.NewDetector(deps.Logger)
	s := &Server{
		deps:     deps,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, deps.Logger),
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		detector: detector,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimit,
			Logger:            deps.Logger,
		}),
		caches:  cache.NewManager(),
		started: deps.Clock(),
	}
	if deps.State != nil {
		s.caches.Register(deps.State.Cleaner())
		s.caches.StartCleanup(cacheCleanupInterval)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// routes builds the handler chain: trace, security headers and detection
// wrap everything; the API adds auth, then the per-user rate limit.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	if s.deps.IssueTokens && s.deps.Auth.TokensEnabled() {
		byIP := s.limiter.Middleware(s.clientKey, s.rateLimited)
		r.Handle("/api/auth/token", byIP(http.HandlerFunc(s.handleIssueToken))).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(
		s.deps.Auth.Middleware(s.unauthorized),
		log.ComponentMiddleware(log.ComponentAPI),
		s.limiter.Middleware(s.rateKey, s.rateLimited),
	)

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)
	api.HandleFunc("/transactions/{id}/toggle-paid", s.handleTogglePaid).Methods(http.MethodPost)

	api.HandleFunc("/credit", s.handleCreditStatement).Methods(http.MethodGet)
	api.HandleFunc("/credit/purchases", s.handleCreditPurchase).Methods(http.MethodPost)
	api.HandleFunc("/settings/credit-card", s.handleGetCreditSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/credit-card", s.handleSaveCreditSettings).Methods(http.MethodPut)

	api.HandleFunc("/categories/{type}", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{type}", s.handleCreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{type}/{id}", s.handleRenameCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{type}/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	api.HandleFunc("/shopping-lists", s.handleListShoppingLists).Methods(http.MethodGet)
	api.HandleFunc("/shopping-lists", s.handleCreateShoppingList).Methods(http.MethodPost)
	api.HandleFunc("/shopping-lists/{id}", s.handleGetShoppingList).Methods(http.MethodGet)
	api.HandleFunc("/shopping-lists/{id}", s.handleUpdateShoppingList).Methods(http.MethodPut)
	api.HandleFunc("/shopping-lists/{id}", s.handleDeleteShoppingList).Methods(http.MethodDelete)
	api.HandleFunc("/shopping-lists/{id}/items", s.handleAddItem).Methods(http.MethodPost)
	api.HandleFunc("/shopping-lists/{id}/items/{itemId}", s.handleUpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/shopping-lists/{id}/items/{itemId}", s.handleDeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/shopping-lists/{id}/items/{itemId}/toggle", s.handleToggleItem).Methods(http.MethodPost)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	api.HandleFunc("/data/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/data/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/data", s.handleDeleteAll).Methods(http.MethodDelete)

	return s.tracer.Middleware(s.headers.Middleware(s.detector.Middleware(r)))
}

// clientKey buckets anonymous requests by client address.
func (s *Server) clientKey(r *http.Request) string {
	return "ip:" + s.detector.ExtractClientIP(r)
}

// rateKey buckets authenticated requests by user, falling back to address.
func (s *Server) rateKey(r *http.Request) string {
	if uid := auth.UserID(r.Context()); uid != "" {
		return "user:" + uid
	}
	return s.clientKey(r)
}

func (s *Server) rateLimited(w http.ResponseWriter, _ *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "too many requests").Write(w)
}

func (s *Server) unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	b := ErrorResponse(http.StatusUnauthorized, "unauthorized")
	if s.deps.Auth.TokensEnabled() {
		b.Header("WWW-Authenticate", "Bearer")
	}
	b.Write(w)
}

// today is the current calendar day on the server clock.
func (s *Server) today() core.Date {
	return core.DateOf(s.deps.Clock())
}

// snapshot returns the caller's state container contents.
func (s *Server) snapshot(r *http.Request) (state.Snapshot, error) {
	c, err := s.deps.State.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		return state.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
