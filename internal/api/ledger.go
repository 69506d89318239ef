package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanzu-lab/yvp/internal/app/ledger"
	"github.com/yanzu-lab/yvp/internal/domain"
)

// ─── Ledger Queries ─────────────────────────────────────────────────────────

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	b, err := s.ledger.NetYVP(actorFrom(r.Context()), chi.URLParam(r, "username"), days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.ledger.Dashboard(actorFrom(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.ledger.Leaderboard(actorFrom(r.Context()), days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handlePeriodReport serves GET /api/reports/period?from=&to=[&format=csv].
func (s *Server) handlePeriodReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := s.parseDate("from", q.Get("from"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	to, err := s.parseDate("to", q.Get("to"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	report, err := s.ledger.PeriodStats(actorFrom(r.Context()), from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if q.Get("format") == "csv" {
		name := fmt.Sprintf("yvp_%s_%s.csv", from.Format("20060102"), to.Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		if err := ledger.WriteCSV(w, report); err != nil {
			s.log.Sugar().Warnw("csv export interrupted", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ─── Penalties & Rewards ────────────────────────────────────────────────────

type penaltyRequest struct {
	Username   string `json:"username"`
	OccurredAt string `json:"occurred_at"`
	Reason     string `json:"reason"`
}

func (s *Server) handleListPenalties(w http.ResponseWriter, r *http.Request) {
	user, ok := s.listScope(w, r)
	if !ok {
		return
	}
	ps, err := s.ledger.Penalties(user)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if ps == nil {
		ps = []domain.Penalty{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"penalties": ps})
}

func (s *Server) handleRecordPenalty(w http.ResponseWriter, r *http.Request) {
	var req penaltyRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	at, err := s.parseDate("occurred_at", req.OccurredAt)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	p, err := s.ledger.RecordPenalty(actorFrom(r.Context()), req.Username, at, req.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePenalty(w http.ResponseWriter, r *http.Request) {
	var req penaltyRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	at, err := s.parseDate("occurred_at", req.OccurredAt)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	p := domain.Penalty{ID: chi.URLParam(r, "id"), Username: req.Username, OccurredAt: at, Reason: req.Reason}
	if err := s.ledger.UpdatePenalty(actorFrom(r.Context()), p); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePenalty(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeletePenalty(actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rewardRequest struct {
	Username  string  `json:"username"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func (s *Server) rewardTime(req rewardRequest) (time.Time, error) {
	if req.CreatedAt == "" {
		return time.Time{}, nil
	}
	return s.parseDate("created_at", req.CreatedAt)
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	user, ok := s.listScope(w, r)
	if !ok {
		return
	}
	rs, err := s.ledger.Rewards(user)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if rs == nil {
		rs = []domain.Reward{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rewards": rs})
}

func (s *Server) handleGrantReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	at, err := s.rewardTime(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rw, err := s.ledger.GrantReward(actorFrom(r.Context()), req.Username, req.Amount, req.Reason, at)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	at, err := s.rewardTime(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if at.IsZero() {
		s.writeDomainError(w, r, &domain.ValidationError{Field: "created_at", Reason: "required when editing"})
		return
	}
	rw := domain.Reward{ID: chi.URLParam(r, "id"), Username: req.Username, Amount: req.Amount, Reason: req.Reason, CreatedAt: at}
	if err := s.ledger.UpdateReward(actorFrom(r.Context()), rw); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

func (s *Server) handleDeleteReward(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteReward(actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listScope picks whose records a listing shows. Members see only their own.
func (s *Server) listScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := actorFrom(r.Context())
	user := r.URL.Query().Get("user")
	if actor.IsAdmin() {
		return user, true
	}
	if user != "" && user != actor.Username {
		writeErrorType(w, http.StatusForbidden, "permission_denied", "members may only list their own records")
		return "", false
	}
	return actor.Username, true
}

// ─── Roster (/api/users) ────────────────────────────────────────────────────

type userRequest struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.roster.List(domain.Role(r.URL.Query().Get("role")))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	u, err := s.roster.Add(actorFrom(r.Context()), req.Username, req.Role)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	if err := s.roster.Remove(actorFrom(r.Context()), chi.URLParam(r, "username")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
