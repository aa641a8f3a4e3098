package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"moneta/internal/cache"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/middleware/ratelimit"
	"moneta/internal/middleware/security"
	"moneta/internal/services"
	"moneta/internal/storage"
)

const (
	overviewCacheSize = 100
	overviewCacheTTL  = 5 * time.Minute
	readTimeout       = 7 * time.Second
)

// ExpenseAPI is the local data the API edits. services.ExpenseService
// implements it.
type ExpenseAPI interface {
	CreateExpense(ctx context.Context, in services.ExpenseInput) (core.Expense, error)
	UpdateExpense(ctx context.Context, id string, in services.ExpenseInput) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, year, month int) ([]core.ExpenseView, error)
	ReadMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error)

	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, in services.CategoryInput) (core.Category, error)
	UpdateCategory(ctx context.Context, id string, in services.CategoryInput) (core.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	GetUser(ctx context.Context) (core.User, error)
	UpdateProfile(ctx context.Context, in services.ProfileInput) (core.User, error)
}

// SettingsAPI is implemented by services.SettingsService.
type SettingsAPI interface {
	SyncEnabled(ctx context.Context) (bool, error)
	SetSyncEnabled(ctx context.Context, enabled bool) (string, error)
	RequestSync(ctx context.Context, mode services.Mode) (string, error)
}

// SyncStatus exposes queue counters and, when the processor runs in this
// process, the last sync report. services.SyncProcessor implements it.
type SyncStatus interface {
	Stats(ctx context.Context) (storage.SyncRequestStats, error)
	LastReport() (services.Report, bool)
}

// Server serves the JSON API.
type Server struct {
	http.Server

	expenses ExpenseAPI
	settings SettingsAPI
	status   SyncStatus
	logger   *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Overview entries are keyed by a generation bumped on every write, so a
	// write invalidates all months at once.
	overview   *cache.LRUCache[core.MonthOverview]
	generation atomic.Int64

	now func() time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, expenses ExpenseAPI, settings SettingsAPI, status SyncStatus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	s := &Server{
		expenses: expenses,
		settings: settings,
		status:   status,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(),
		overview: cache.NewLRUCache[core.MonthOverview](overviewCacheSize, overviewCacheTTL),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/user", s.handleGetUser)
	mux.HandleFunc("PUT /api/user", s.handleUpdateUser)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/overview", s.handleMonthOverview)

	mux.HandleFunc("GET /api/settings/sync", s.handleGetSyncSettings)
	mux.HandleFunc("POST /api/settings/sync", s.handleSetSyncSettings)
	mux.HandleFunc("POST /api/sync", s.handleRequestSync)
	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later").Write(w)
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// OverviewCache is exposed so the cache manager can expire entries.
func (s *Server) OverviewCache() *cache.LRUCache[core.MonthOverview] {
	return s.overview
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports ready once the local store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()
	if _, err := s.status.Stats(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		ErrorResponse(http.StatusServiceUnavailable, "not_ready", "local store unavailable").Write(w)
		return
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) invalidateOverview() {
	s.generation.Add(1)
}

func (s *Server) getOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	key := fmt.Sprintf("%d:%04d-%02d", s.generation.Load(), year, month)

	cctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	ov, err := s.overview.GetOrLoad(cctx, key, func(ctx context.Context) (core.MonthOverview, error) {
		return s.expenses.ReadMonthOverview(ctx, year, month)
	})
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read month overview (year=%d, month=%d): %w", year, month, err)
	}
	return ov, nil
}
