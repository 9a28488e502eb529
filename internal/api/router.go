package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/api/handler"
	apimw "github.com/akaeyuhi/SwiftE-commerce-sub007/internal/api/middleware"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/bus"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/maintenance"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	q *queue.Queue,
	pq *queue.PriorityQueue,
	b *bus.Bus,
	runner *maintenance.Runner,
	pool *pgxpool.Pool,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	jh := handler.NewJobHandler(q, logger)
	eh := handler.NewEventHandler(b, logger)
	mnt := handler.NewMaintenanceHandler(runner, logger)
	mh := handler.NewMetricsHandler(pq)
	hh := handler.NewHealthHandler(pool)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Jobs — note: /retry must be registered before /{id} so chi
		// does not treat the literal string "retry" as an ID.
		r.Post("/jobs/retry", jh.RetryFailed)
		r.Post("/jobs", jh.Create)
		r.Get("/jobs/{id}", jh.GetByID)
		r.Delete("/jobs/{id}", jh.Cancel)

		// Recurring schedules
		r.Post("/schedules", jh.CreateSchedule)
		r.Delete("/schedules/{id}", jh.DeleteSchedule)

		// Domain events
		r.Post("/events", eh.Publish)

		// Maintenance
		r.Get("/maintenance/tasks", mnt.List)
		r.Post("/maintenance/tasks/{name}/run", mnt.RunTask)
		r.Post("/maintenance/run", mnt.RunAll)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
