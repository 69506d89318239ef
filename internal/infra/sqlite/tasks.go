package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// ─── Task Repository ────────────────────────────────────────────────────────

const taskColumns = `id, title, description, difficulty, std_time, quality, status,
	assignee, type, is_rnd, deadline, completed_at, feedback, created_at`

// InsertTask creates a new task record.
func (d *DB) InsertTask(t domain.Task) error {
	_, err := d.db.Exec(
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Difficulty, t.StdTime, t.Quality,
		string(t.Status), assigneeOrSentinel(t.Assignee), string(t.Type), t.IsRnD,
		nullableUnix(t.Deadline), nullableUnix(t.CompletedAt), t.Feedback, t.CreatedAt.Unix(),
	)
	return err
}

// GetTask retrieves a task by ID.
func (d *DB) GetTask(id string) (*domain.Task, error) {
	return getTask(d.db, id)
}

func getTask(q queryer, id string) (*domain.Task, error) {
	row := q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrTaskNotFound)
	}
	return t, err
}

// ListTasks returns tasks matching the filter, most recently completed first,
// then most recently created.
func (d *DB) ListTasks(f domain.TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Assignee != "" {
		where = append(where, "assignee = ?")
		args = append(args, f.Assignee)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(completed_at, 0) DESC, created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return queryTasks(d.db, query, args...)
}

// TransitionTask writes t only if the stored status still equals from.
// A concurrent change between read and write yields ErrStateConflict.
func (d *DB) TransitionTask(from domain.TaskStatus, t domain.Task) error {
	res, err := d.db.Exec(
		`UPDATE tasks SET status = ?, assignee = ?, quality = ?, completed_at = ?, feedback = ?
		 WHERE id = ? AND status = ?`,
		string(t.Status), assigneeOrSentinel(t.Assignee), t.Quality,
		nullableUnix(t.CompletedAt), t.Feedback, t.ID, string(from),
	)
	if err != nil {
		return err
	}
	if affected(res) == 1 {
		return nil
	}
	if _, err := d.GetTask(t.ID); err != nil {
		return err
	}
	return fmt.Errorf("task %s left state %s concurrently: %w", t.ID, from, domain.ErrStateConflict)
}

// ClaimTask atomically re-checks the task state and the claimant's load,
// then assigns the task. Everything runs in a single transaction.
func (d *DB) ClaimTask(req domain.ClaimRequest) (*domain.Task, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	t, err := getTask(tx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusUnclaimed {
		return nil, &domain.TransitionError{TaskID: t.ID, Op: domain.OpClaim, From: t.Status}
	}

	if req.MaxActive > 0 && len(req.CapStates) > 0 {
		args := []any{req.Assignee, string(domain.TypePublicPool)}
		for _, s := range req.CapStates {
			args = append(args, string(s))
		}
		var active int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM tasks WHERE assignee = ? AND type = ?
			 AND status IN (`+placeholders(len(req.CapStates))+`)`, args...,
		).Scan(&active)
		if err != nil {
			return nil, fmt.Errorf("count active claims: %w", err)
		}
		if active >= req.MaxActive {
			return nil, &domain.CapacityError{Username: req.Assignee, Active: active, Limit: req.MaxActive}
		}
	}

	res, err := tx.Exec(
		`UPDATE tasks SET status = ?, assignee = ? WHERE id = ? AND status = ?`,
		string(domain.StatusInProgress), req.Assignee, req.TaskID, string(domain.StatusUnclaimed),
	)
	if err != nil {
		return nil, err
	}
	if affected(res) != 1 {
		return nil, &domain.TransitionError{TaskID: t.ID, Op: domain.OpClaim, From: t.Status}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	t.Status = domain.StatusInProgress
	t.Assignee = req.Assignee
	return t, nil
}

// ReplaceTask overwrites every mutable column of a task.
func (d *DB) ReplaceTask(t domain.Task) error {
	return replaceTask(d.db, t)
}

func replaceTask(q queryer, t domain.Task) error {
	res, err := q.Exec(
		`UPDATE tasks SET title = ?, description = ?, difficulty = ?, std_time = ?, quality = ?,
			status = ?, assignee = ?, type = ?, is_rnd = ?, deadline = ?, completed_at = ?, feedback = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Difficulty, t.StdTime, t.Quality,
		string(t.Status), assigneeOrSentinel(t.Assignee), string(t.Type), t.IsRnD,
		nullableUnix(t.Deadline), nullableUnix(t.CompletedAt), t.Feedback, t.ID,
	)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrTaskNotFound)
	}
	return nil
}

// DeleteTask removes a task record.
func (d *DB) DeleteTask(id string) error {
	return deleteTask(d.db, id)
}

func deleteTask(q queryer, id string) error {
	res, err := q.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrTaskNotFound)
	}
	return nil
}

// OverrideTask replaces a task and records the audit event in one
// transaction. Neither write lands unless both do.
func (d *DB) OverrideTask(t domain.Task, e domain.AuditEvent) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin override: %w", err)
	}
	defer tx.Rollback()

	if err := replaceTask(tx, t); err != nil {
		return err
	}
	if err := insertAudit(tx, e); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return tx.Commit()
}

// PurgeTask deletes a task and records the audit event in one transaction.
func (d *DB) PurgeTask(id string, e domain.AuditEvent) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	if err := deleteTask(tx, id); err != nil {
		return err
	}
	if err := insertAudit(tx, e); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return tx.Commit()
}

// CountDoneWithoutCompletion counts Done tasks that lost their completed_at,
// which only an administrative override can cause.
func (d *DB) CountDoneWithoutCompletion() (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM tasks WHERE status = ? AND completed_at IS NULL`,
		string(domain.StatusDone),
	).Scan(&n)
	return n, err
}

func queryTasks(q queryer, query string, args ...any) ([]domain.Task, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var difficulty, stdTime, quality sql.NullFloat64
	var deadline, completedAt sql.NullInt64
	var createdAt int64

	err := s.Scan(&t.ID, &t.Title, &t.Description, &difficulty, &stdTime, &quality,
		&t.Status, &t.Assignee, &t.Type, &t.IsRnD, &deadline, &completedAt,
		&t.Feedback, &createdAt)
	if err != nil {
		return nil, err
	}

	// Missing numbers load as zero value; missing quality as the pre-judgment default.
	t.Difficulty = difficulty.Float64
	t.StdTime = stdTime.Float64
	t.Quality = domain.DefaultQuality
	if quality.Valid {
		t.Quality = quality.Float64
	}
	t.Deadline = timePtr(deadline)
	t.CompletedAt = timePtr(completedAt)
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

func assigneeOrSentinel(a string) string {
	if a == "" {
		return domain.Unassigned
	}
	return a
}
