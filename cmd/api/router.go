package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/crucial707/spendflow/internal/auth"
	"github.com/crucial707/spendflow/internal/config"
	"github.com/crucial707/spendflow/internal/events"
	"github.com/crucial707/spendflow/internal/handlers"
	"github.com/crucial707/spendflow/internal/middleware"
	"github.com/crucial707/spendflow/internal/repo"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter wires repositories, handlers and middleware onto a chi router.
// pub may be nil, in which case no domain events are published.
func newRouter(db *sql.DB, cfg config.Config, pub events.Publisher) http.Handler {
	if pub == nil {
		pub = events.Nop{}
	}
	expireHours := cfg.JWTExpireHours
	if expireHours <= 0 {
		expireHours = 24 * 7
	}

	userRepo := repo.NewUserRepo(db)
	expenseRepo := repo.NewExpenseRepo(db)
	activityRepo := repo.NewActivityRepo(db)
	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), time.Duration(expireHours)*time.Hour)

	authHandler := &handlers.AuthHandler{UserRepo: userRepo, Tokens: issuer, Events: pub}
	expenseHandler := &handlers.ExpenseHandler{
		Repo:           expenseRepo,
		Activity:       activityRepo,
		Events:         pub,
		ImportMaxBytes: cfg.ImportMaxBytes,
	}
	activityHandler := &handlers.ActivityHandler{Repo: activityRepo}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLog)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(cfg.TLSEnabled()))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			handlers.JSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public account routes
	authLimiter := middleware.AuthRateLimiter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
		r.With(authLimiter.Middleware).Post("/register", authHandler.Register)
		r.With(authLimiter.Middleware).Post("/login", authHandler.Login)
		r.With(middleware.UsernameCheckRateLimiter().Middleware).Get("/check-username", authHandler.CheckUsername)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(issuer, userRepo))

		r.Get("/me", authHandler.Me)
		r.Delete("/delete-account", authHandler.DeleteAccount)
		r.Get("/stats/users-count", authHandler.UsersCount)
		r.Get("/activity", activityHandler.ListActivity)

		r.Route("/expenses", func(r chi.Router) {
			// import enforces its own, larger cap
			r.Post("/import", expenseHandler.ImportExpenses)

			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBytes(middleware.DefaultMaxBodyBytes))
				r.Post("/", expenseHandler.CreateExpense)
				r.Get("/", expenseHandler.ListExpenses)
				r.Get("/summary", expenseHandler.Summary)
				r.Get("/export", expenseHandler.ExportExpenses)
				r.Put("/{id}", expenseHandler.UpdateExpense)
				r.Delete("/{id}", expenseHandler.DeleteExpense)
			})
		})
	})

	return r
}
