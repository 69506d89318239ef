package sqlite

import (
	"fmt"
	"time"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// InsertUser adds a roster entry.
func (d *DB) InsertUser(u domain.User) error {
	res, err := d.db.Exec(
		`INSERT INTO users (username, role, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.Username, string(u.Role), u.CreatedAt.Unix(),
	)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("user %s: %w", u.Username, domain.ErrUserExists)
	}
	return nil
}

// GetUser retrieves a roster entry.
func (d *DB) GetUser(username string) (*domain.User, error) {
	var u domain.User
	var createdAt int64
	err := d.db.QueryRow(
		`SELECT username, role, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.Role, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", username, domain.ErrUserNotFound)
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// ListUsers returns roster entries with the given role, or all when role is empty.
func (d *DB) ListUsers(role domain.Role) ([]domain.User, error) {
	query := `SELECT username, role, created_at FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY username`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var createdAt int64
		if err := rows.Scan(&u.Username, &u.Role, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(createdAt, 0)
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a roster entry. Their tasks and records stay.
func (d *DB) DeleteUser(username string) error {
	res, err := d.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("user %s: %w", username, domain.ErrUserNotFound)
	}
	return nil
}

// ─── Penalties ──────────────────────────────────────────────────────────────

// InsertPenalty appends an attendance infraction.
func (d *DB) InsertPenalty(p domain.Penalty) error {
	_, err := d.db.Exec(
		`INSERT INTO penalties (id, username, occurred_at, reason) VALUES (?, ?, ?, ?)`,
		p.ID, p.Username, p.OccurredAt.Unix(), p.Reason,
	)
	return err
}

// UpdatePenalty rewrites an infraction in place.
func (d *DB) UpdatePenalty(p domain.Penalty) error {
	res, err := d.db.Exec(
		`UPDATE penalties SET username = ?, occurred_at = ?, reason = ? WHERE id = ?`,
		p.Username, p.OccurredAt.Unix(), p.Reason, p.ID,
	)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("penalty %s: %w", p.ID, domain.ErrPenaltyNotFound)
	}
	return nil
}

// DeletePenalty removes an infraction.
func (d *DB) DeletePenalty(id string) error {
	res, err := d.db.Exec(`DELETE FROM penalties WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("penalty %s: %w", id, domain.ErrPenaltyNotFound)
	}
	return nil
}

// ListPenalties returns infractions newest first, for one user or everyone.
func (d *DB) ListPenalties(username string) ([]domain.Penalty, error) {
	return listPenalties(d.db, username)
}

func listPenalties(q queryer, username string) ([]domain.Penalty, error) {
	query := `SELECT id, username, occurred_at, reason FROM penalties`
	var args []any
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` ORDER BY occurred_at DESC, id`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Penalty
	for rows.Next() {
		var p domain.Penalty
		var ts int64
		if err := rows.Scan(&p.ID, &p.Username, &ts, &p.Reason); err != nil {
			return nil, err
		}
		p.OccurredAt = time.Unix(ts, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// InsertReward appends a manual credit.
func (d *DB) InsertReward(r domain.Reward) error {
	_, err := d.db.Exec(
		`INSERT INTO rewards (id, username, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Username, r.Amount, r.Reason, r.CreatedAt.Unix(),
	)
	return err
}

// UpdateReward rewrites a manual credit in place.
func (d *DB) UpdateReward(r domain.Reward) error {
	res, err := d.db.Exec(
		`UPDATE rewards SET username = ?, amount = ?, reason = ?, created_at = ? WHERE id = ?`,
		r.Username, r.Amount, r.Reason, r.CreatedAt.Unix(), r.ID,
	)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("reward %s: %w", r.ID, domain.ErrRewardNotFound)
	}
	return nil
}

// DeleteReward removes a manual credit.
func (d *DB) DeleteReward(id string) error {
	res, err := d.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("reward %s: %w", id, domain.ErrRewardNotFound)
	}
	return nil
}

// ListRewards returns credits newest first, for one user or everyone.
func (d *DB) ListRewards(username string) ([]domain.Reward, error) {
	return listRewards(d.db, username)
}

func listRewards(q queryer, username string) ([]domain.Reward, error) {
	query := `SELECT id, username, amount, reason, created_at FROM rewards`
	var args []any
	if username != "" {
		query += ` WHERE username = ?`
		args = append(args, username)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reward
	for rows.Next() {
		var r domain.Reward
		var ts int64
		if err := rows.Scan(&r.ID, &r.Username, &r.Amount, &r.Reason, &ts); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Audit ──────────────────────────────────────────────────────────────────

// InsertAudit records an administrative action.
func (d *DB) InsertAudit(e domain.AuditEvent) error {
	return insertAudit(d.db, e)
}

func insertAudit(q queryer, e domain.AuditEvent) error {
	_, err := q.Exec(
		`INSERT INTO audit_events (id, at, actor, task_id, kind, detail, flagged)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.At.Unix(), e.Actor, e.TaskID, string(e.Kind), e.Detail, e.Flagged,
	)
	return err
}

// AuditEvents returns the most recent audit events.
func (d *DB) AuditEvents(limit int) ([]domain.AuditEvent, error) {
	rows, err := d.db.Query(
		`SELECT id, at, actor, task_id, kind, detail, flagged
		 FROM audit_events ORDER BY at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.Actor, &e.TaskID, &e.Kind, &e.Detail, &e.Flagged); err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
