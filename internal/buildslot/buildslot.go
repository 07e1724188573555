// Package buildslot implements BuildSlotManager (spec §4.4's sibling
// primitive named in §3): a named TTL semaphore keyed by
// (project_id, slot_name), at most one active holder at a time.
package buildslot

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// Slot is a BuildSlot row.
type Slot struct {
	ID         core.BuildSlotId
	ProjectID  core.ProjectId
	AgentID    core.AgentId
	SlotName   string
	AcquiredTS time.Time
	ExpiresTS  time.Time
}

// AcquireResult reports whether the caller was granted the slot, and if
// not, who currently holds it.
type AcquireResult struct {
	Granted    bool
	Slot       Slot
	HeldBy     *Slot
}

// Manager is BuildSlotManager.
type Manager struct {
	db *db.Store
}

// New wires a BuildSlotManager to the shared relational store.
func New(store *db.Store) *Manager {
	return &Manager{db: store}
}

var timeNow = func() time.Time { return time.Now().UTC() }

// Acquire grants the named slot to agentID unless another agent already
// holds an active claim on (projectID, slotName), in which case it reports
// the current holder instead of creating a new row.
func (m *Manager) Acquire(ctx context.Context, projectID core.ProjectId, agentID core.AgentId, slotName string, ttl time.Duration) (AcquireResult, error) {
	if slotName == "" {
		return AcquireResult{}, core.InvalidInput("slot_name", "slot_name must not be empty")
	}

	now := timeNow()
	var result AcquireResult

	err := m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, project_id, agent_id, slot_name, acquired_ts, expires_ts
			FROM build_slots WHERE project_id = ? AND slot_name = ? AND expires_ts > ?`,
			int64(projectID), slotName, db.FormatTime(now))

		existing, err := scanSlot(row)
		if err == nil {
			result = AcquireResult{Granted: false, HeldBy: &existing}
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		expires := now.Add(ttl)
		res, err := tx.ExecContext(ctx, `INSERT INTO build_slots(project_id, agent_id, slot_name, acquired_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?)`, int64(projectID), int64(agentID), slotName, db.FormatTime(now), db.FormatTime(expires))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		result = AcquireResult{Granted: true, Slot: Slot{
			ID: core.BuildSlotId(id), ProjectID: projectID, AgentID: agentID, SlotName: slotName,
			AcquiredTS: now, ExpiresTS: expires,
		}}
		return nil
	})
	return result, err
}

// Release removes slot id unconditionally. Returns false if it did not
// exist.
func (m *Manager) Release(ctx context.Context, id core.BuildSlotId) (bool, error) {
	var found bool
	err := m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM build_slots WHERE id = ?", int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})
	return found, err
}

// Renew extends id's expiry to now + newTTL. Returns false if id does not
// exist.
func (m *Manager) Renew(ctx context.Context, id core.BuildSlotId, newTTL time.Duration) (bool, error) {
	expires := db.FormatTime(timeNow().Add(newTTL))
	var found bool
	err := m.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE build_slots SET expires_ts = ? WHERE id = ?", expires, int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})
	return found, err
}

// ListActiveForProject returns every build slot currently active in
// project.
func (m *Manager) ListActiveForProject(ctx context.Context, projectID core.ProjectId) ([]Slot, error) {
	rows, err := m.db.DB().QueryContext(ctx, `
		SELECT id, project_id, agent_id, slot_name, acquired_ts, expires_ts
		FROM build_slots WHERE project_id = ? AND expires_ts > ? ORDER BY acquired_ts ASC`,
		int64(projectID), db.FormatTime(timeNow()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (Slot, error) {
	var s Slot
	var acquired, expires string
	if err := row.Scan((*int64)(&s.ID), (*int64)(&s.ProjectID), (*int64)(&s.AgentID), &s.SlotName, &acquired, &expires); err != nil {
		return Slot{}, err
	}
	var err error
	if s.AcquiredTS, err = db.ParseTime(acquired); err != nil {
		return Slot{}, err
	}
	if s.ExpiresTS, err = db.ParseTime(expires); err != nil {
		return Slot{}, err
	}
	return s, nil
}
