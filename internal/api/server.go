// Package api provides the HTTP server for YVP: task workflow, ledger
// queries, penalty and reward administration, and period exports.
//
// Callers identify themselves with the X-YVP-User header; the name must
// be on the roster. Credentials are checked upstream of this server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanzu-lab/yvp/internal/app/ledger"
	"github.com/yanzu-lab/yvp/internal/app/roster"
	"github.com/yanzu-lab/yvp/internal/app/workflow"
	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/health"
)

// UserHeader carries the caller's roster name.
const UserHeader = "X-YVP-User"

// Version is reported by /api/status.
const Version = "0.3.0"

// Server is the YVP HTTP API server.
type Server struct {
	workflow *workflow.Service
	ledger   *ledger.Service
	roster   *roster.Service
	health   *health.Checker
	loc      *time.Location
	log      *zap.Logger

	metricsEnabled bool
	corsOrigins    []string
}

// NewServer creates a new API server. Dates in query strings and bodies
// are read in loc.
func NewServer(wf *workflow.Service, led *ledger.Service, ros *roster.Service, loc *time.Location, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		workflow:    wf,
		ledger:      led,
		roster:      ros,
		loc:         loc,
		log:         log.Named("api"),
		corsOrigins: []string{"*"},
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth makes /health report the checker's latest results.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins restricts the allowed browser origins.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "YVP is running",
			"version": Version,
			"policy":  s.ledger.Engine().Policy().Version,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, actorFrom(r.Context()))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleAddUser)
			r.Delete("/{username}", s.handleRemoveUser)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleOverrideTask)
				r.Delete("/", s.handlePurgeTask)
				r.Post("/claim", s.handleClaim)
				r.Post("/submit", s.handleSubmit)
				r.Post("/resubmit", s.handleResubmit)
				r.Post("/accept", s.handleAccept)
				r.Post("/reject", s.handleReject)
			})
		})
		r.Get("/audit", s.handleAudit)

		r.Route("/penalties", func(r chi.Router) {
			r.Get("/", s.handleListPenalties)
			r.Post("/", s.handleRecordPenalty)
			r.Put("/{id}", s.handleUpdatePenalty)
			r.Delete("/{id}", s.handleDeletePenalty)
		})
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", s.handleListRewards)
			r.Post("/", s.handleGrantReward)
			r.Put("/{id}", s.handleUpdateReward)
			r.Delete("/{id}", s.handleDeleteReward)
		})

		r.Get("/ledger/{username}", s.handleBalance)
		r.Get("/ledger/{username}/dashboard", s.handleDashboard)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/reports/period", s.handlePeriodReport)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// ─── Identity ───────────────────────────────────────────────────────────────

type ctxKey int

const actorKey ctxKey = iota

// identify resolves the X-YVP-User header against the roster.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get(UserHeader))
		if name == "" {
			writeErrorType(w, http.StatusUnauthorized, "unauthenticated", "missing "+UserHeader+" header")
			return
		}
		actor, err := s.roster.Resolve(name)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				writeErrorType(w, http.StatusUnauthorized, "unauthenticated", "unknown user "+name)
				return
			}
			s.writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFrom(ctx context.Context) domain.Actor {
	a, _ := ctx.Value(actorKey).(domain.Actor)
	return a
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorType(w, status, "error", msg)
}

func writeErrorType(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    typ,
		},
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var typ string
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, typ = http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, domain.ErrCapacityExceeded):
		status, typ = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, domain.ErrStateConflict):
		status, typ = http.StatusConflict, "state_conflict"
	case errors.Is(err, domain.ErrUserExists):
		status, typ = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrPenaltyNotFound), errors.Is(err, domain.ErrRewardNotFound):
		status, typ = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		status, typ = http.StatusForbidden, "permission_denied"
	default:
		s.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status, typ = http.StatusInternalServerError, "internal"
	}
	writeErrorType(w, status, typ, err.Error())
}

// corsMiddleware adds CORS headers for the team board.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return ""
}

// ─── Request Parsing ────────────────────────────────────────────────────────

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func (s *Server) parseDate(field, v string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, s.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, &domain.ValidationError{Field: field, Reason: "want YYYY-MM-DD or RFC 3339, got " + strconv.Quote(v)}
}

// parseDays reads ?days=N; absent or "all" means all history.
func parseDays(r *http.Request) (*int, error) {
	v := r.URL.Query().Get("days")
	if v == "" || v == "all" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, &domain.ValidationError{Field: "days", Reason: "not an integer: " + strconv.Quote(v)}
	}
	return &n, nil
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: "limit", Reason: "want a non-negative integer"}
	}
	return n, nil
}
