// Package http serves the JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/recurring"
)

// ExpenseService is what the expense handlers need.
type ExpenseService interface {
	CreateExpense(ctx context.Context, e core.Expense, benefit []core.Share) (core.Expense, error)
	GetExpense(ctx context.Context, groupID, id int64) (core.Expense, error)
	DeleteExpense(ctx context.Context, groupID, id int64) error
}

// RecurringService is what the recurrence and month handlers need.
type RecurringService interface {
	CreateRecurring(ctx context.Context, groupID, expenseID int64, period core.RecurrencePeriod, first core.Date) (core.RecurringExpense, error)
	UpdateRecurring(ctx context.Context, groupID, expenseID int64, target core.Target, changes recurring.ExpenseChanges) error
	DeleteRecurring(ctx context.Context, groupID, expenseID int64, target core.Target) error
	ExpensesForMonth(ctx context.Context, groupID int64, year, month int) (core.MonthOverview, error)
	GetRecurring(ctx context.Context, groupID, recurringID int64) (core.RecurringExpense, error)
	ListRecurring(ctx context.Context, groupID int64) ([]core.RecurringExpense, error)
	Totals(ctx context.Context, groupID, recurringID int64) (core.RecurrenceTotals, error)
}

type Server struct {
	http.Server
	expenses    ExpenseService
	recurring   RecurringService
	rateLimiter *rateLimiter
	started     time.Time
	now         func() time.Time

	shutdownOnce sync.Once
}

// Options tunes the server; zero values pick the defaults.
type Options struct {
	Logger *log.Logger
	// RateLimit caps mutating requests per client and minute.
	RateLimit int
	// Now is the clock used for default month parameters.
	Now func() time.Time
}

// NewServer wires the routes and middleware into a ready-to-run http.Server.
func NewServer(addr string, expenses ExpenseService, recurringSvc RecurringService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		expenses:    expenses,
		recurring:   recurringSvc,
		rateLimiter: newRateLimiter(opts.RateLimit, time.Minute),
		started:     time.Now(),
		now:         opts.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(opts.Logger))
	r.Use(log.RequestIDMiddleware(uuid.NewString))
	r.Use(log.ComponentMiddleware(log.ComponentHTTP))
	r.Use(log.AccessLog)
	r.Use(securityHeaders)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/expense", func(r chi.Router) {
		r.Use(s.rateLimiter.middleware)

		r.Post("/", s.handleCreateExpense)
		r.Get("/month", s.handleMonth)
		r.Get("/{id}", s.handleGetExpense)
		r.Delete("/{id}", s.handleDeleteExpense)

		// {id} is the addressed posting for POST, PUT and DELETE and the
		// recurrence for the GET routes.
		r.Route("/recurring", func(r chi.Router) {
			r.Get("/", s.handleListRecurring)
			r.Post("/{id}", s.handleCreateRecurring)
			r.Put("/{id}", s.handleUpdateRecurring)
			r.Delete("/{id}", s.handleDeleteRecurring)
			r.Get("/{id}", s.handleGetRecurring)
			r.Get("/{id}/totals", s.handleTotals)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// RateLimiter exposes the limiter so its idle clients can be cleaned with the
// other caches.
func (s *Server) RateLimiter() interface{ CleanExpired() int } {
	return s.rateLimiter
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// securityHeaders sets the headers every API response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
