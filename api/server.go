/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through logrus, tagged with the request id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Identity:   X-User-ID header -> request context

ROUTE GROUPS:
  /api/staff/*          Staff and compensation calculation
  /api/clients/*        Clients, allocations, availability
  /api/budget-types/*   Budget type catalog
  /api/allocations/*    Client budget allocations
  /api/expenses/*       Budget expense ledger
  /api/time-logs/*      Hour allocation
  /api/compensations/*  Compensation lifecycle
  /api/jobs/*           Batch generation
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. The X-User-ID header is trusted as given
  and only used for audit fields.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
)

// DefaultAllowedOrigins are used when the handler has none configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	origins := h.allowedOrigins
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))
	r.Use(identity)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Staff routes
		r.Route("/staff", func(r chi.Router) {
			r.Get("/", h.ListStaff)
			r.Post("/", h.SaveStaff)
			r.Get("/{id}", h.GetStaff)
			r.Get("/{id}/compensation", h.CalculateCompensation)
			r.Get("/{id}/time-logs", h.ListStaffTimeLogs)
		})

		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.SaveClient)
			r.Get("/{id}/allocations", h.ListClientAllocations)
			r.Get("/{id}/availability", h.GetClientAvailability)
		})

		// Budget type routes
		r.Route("/budget-types", func(r chi.Router) {
			r.Get("/", h.ListBudgetTypes)
			r.Post("/", h.SaveBudgetType)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/", h.SaveAllocation)
			r.Get("/{id}", h.GetAllocation)
			r.Get("/{id}/expenses", h.ListAllocationExpenses)
		})

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Post("/", h.CreateExpense)
			r.Get("/{id}", h.GetExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		r.Post("/time-logs/allocate", h.AllocateHours)

		// Compensation routes
		r.Route("/compensations", func(r chi.Router) {
			r.Get("/", h.ListCompensations)
			r.Post("/", h.GenerateCompensation)
			r.Get("/{id}", h.GetCompensation)
			r.Patch("/{id}", h.PatchCompensation)
			r.Post("/{id}/submit", h.SubmitCompensation)
			r.Get("/{id}/budget-availability", h.GetBudgetAvailability)
			r.Post("/{id}/approve", h.ApproveCompensation)
			r.Post("/{id}/mark-paid", h.MarkCompensationPaid)
			r.Get("/{id}/allocations", h.ListCompensationAllocations)
			r.Get("/{id}/adjustments", h.ListAdjustments)
		})

		// Job routes
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/compensations", h.StartCompensationJob)
			r.Get("/{id}", h.GetJob)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// =============================================================================
// REQUEST LOGGING
// =============================================================================

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	})
}

// =============================================================================
// IDENTITY
// =============================================================================

// UserHeader carries the id of the acting user.
const UserHeader = "X-User-ID"

// SystemUser is recorded when a request names no user.
const SystemUser = "system"

type userKey struct{}

func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			user = SystemUser
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns ctx carrying user as the acting user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user, or SystemUser.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return SystemUser
}
