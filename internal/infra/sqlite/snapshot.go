package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// LoadSnapshot reads the Done tasks, penalties and rewards inside one
// transaction so a report never mixes states from before and after a write.
// An empty username loads every user.
func (d *DB) LoadSnapshot(username string) (domain.Snapshot, error) {
	var snap domain.Snapshot

	tx, err := d.db.Begin()
	if err != nil {
		return snap, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ?`
	args := []any{string(domain.StatusDone)}
	if username != "" {
		query += ` AND assignee = ?`
		args = append(args, username)
	}
	query += ` ORDER BY COALESCE(completed_at, 0), id`

	if snap.Tasks, err = queryTasks(tx, query, args...); err != nil {
		return snap, fmt.Errorf("load tasks: %w", err)
	}
	if snap.Penalties, err = listPenalties(tx, username); err != nil {
		return snap, fmt.Errorf("load penalties: %w", err)
	}
	if snap.Rewards, err = listRewards(tx, username); err != nil {
		return snap, fmt.Errorf("load rewards: %w", err)
	}
	return snap, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
