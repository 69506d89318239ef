package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/yanzu-lab/yvp/internal/app/ledger"
	"github.com/yanzu-lab/yvp/internal/domain"
)

// ─── Task Workflow (/api/tasks) ─────────────────────────────────────────────

// taskView adds the derived values the board shows next to a task.
type taskView struct {
	domain.Task
	NominalValue float64         `json:"nominal_value"`
	Earned       decimal.Decimal `json:"earned"`
}

func viewOf(t domain.Task) taskView {
	return taskView{Task: t, NominalValue: t.NominalValue(), Earned: ledger.Earned(t)}
}

func viewsOf(tasks []domain.Task) []taskView {
	out := make([]taskView, len(tasks))
	for i, t := range tasks {
		out[i] = viewOf(t)
	}
	return out
}

// handleListTasks serves the standard boards via ?view=, or a raw filter
// via ?status=&user=.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var tasks []domain.Task
	switch view := q.Get("view"); view {
	case "pool":
		tasks, err = s.workflow.Pool()
	case "inflight":
		tasks, err = s.workflow.InFlight()
	case "review":
		tasks, err = s.workflow.PendingReview()
	case "open":
		user := q.Get("user")
		if user == "" {
			user = actorFrom(r.Context()).Username
		}
		tasks, err = s.workflow.Open(user)
	case "history":
		tasks, err = s.workflow.History(q.Get("user"), limit)
	case "":
		f := domain.TaskFilter{Assignee: q.Get("user"), Type: domain.TaskType(q.Get("type")), Limit: limit}
		for _, st := range q["status"] {
			f.Statuses = append(f.Statuses, domain.TaskStatus(st))
		}
		tasks, err = s.workflow.List(f)
	default:
		writeError(w, http.StatusBadRequest, "unknown view "+view)
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": viewsOf(tasks),
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req domain.NewTask
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.TypePublicPool
	}
	t, err := s.workflow.Create(actorFrom(r.Context()), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*t))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.workflow.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*t))
}

func (s *Server) handleOverrideTask(w http.ResponseWriter, r *http.Request) {
	var patch domain.TaskPatch
	if err := decode(r, &patch); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	t, err := s.workflow.Override(actorFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*t))
}

func (s *Server) handlePurgeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.workflow.Purge(actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- transitions ---

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.respondTask(w, r)(s.workflow.Claim(actorFrom(r.Context()), chi.URLParam(r, "id")))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.respondTask(w, r)(s.workflow.Submit(actorFrom(r.Context()), chi.URLParam(r, "id")))
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	s.respondTask(w, r)(s.workflow.Resubmit(actorFrom(r.Context()), chi.URLParam(r, "id")))
}

type judgeRequest struct {
	Quality  *float64 `json:"quality"`
	Feedback string   `json:"feedback"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Quality == nil {
		s.writeDomainError(w, r, &domain.ValidationError{Field: "quality", Reason: "required when accepting"})
		return
	}
	s.respondTask(w, r)(s.workflow.Accept(actorFrom(r.Context()), chi.URLParam(r, "id"), *req.Quality, req.Feedback))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.respondTask(w, r)(s.workflow.Reject(actorFrom(r.Context()), chi.URLParam(r, "id"), req.Feedback))
}

func (s *Server) respondTask(w http.ResponseWriter, r *http.Request) func(*domain.Task, error) {
	return func(t *domain.Task, err error) {
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(*t))
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	events, err := s.workflow.Audit(actorFrom(r.Context()), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
