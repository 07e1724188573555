// Package reservation implements ReservationEndpoint (spec §4.4): advisory,
// glob-aware file claims with TTL-based active/expired/released states and
// no background expirer.
package reservation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// Reservation is a FileReservation row (spec §3).
type Reservation struct {
	ID          core.ReservationId
	ProjectID   core.ProjectId
	AgentID     core.AgentId
	PathPattern string
	Exclusive   bool
	Reason      string
	CreatedTS   time.Time
	ExpiresTS   time.Time
}

// AcquireResult is the return value of Acquire: the newly created row plus
// any active exclusive reservations it conflicts with (spec §4.4 — acquire
// never fails on conflict alone).
type AcquireResult struct {
	Granted   Reservation
	Conflicts []Reservation
}

// Engine is ReservationEngine.
type Engine struct {
	db *db.Store
}

// New wires a ReservationEngine to the shared relational store.
func New(store *db.Store) *Engine {
	return &Engine{db: store}
}

var timeNow = func() time.Time { return time.Now().UTC() }

// Acquire always creates the reservation row (the advisory model never
// refuses a write) and reports any active exclusive reservations held by
// other agents whose path pattern overlaps.
func (e *Engine) Acquire(ctx context.Context, projectID core.ProjectId, agentID core.AgentId, pathPattern string, exclusive bool, reason string, ttl time.Duration) (AcquireResult, error) {
	if pathPattern == "" {
		return AcquireResult{}, core.InvalidInput("path_pattern", "path_pattern must not be empty")
	}

	now := timeNow()
	expires := now.Add(ttl)

	active, err := e.listActive(ctx, projectID)
	if err != nil {
		return AcquireResult{}, err
	}

	var conflicts []Reservation
	if exclusive {
		for _, r := range active {
			if r.AgentID == agentID {
				continue
			}
			if !r.Exclusive {
				continue
			}
			if Overlaps(pathPattern, r.PathPattern) {
				conflicts = append(conflicts, r)
			}
		}
	} else {
		// Even a non-exclusive acquire reports conflicts against existing
		// exclusive holders, since the new claim would be unsafe to act on.
		for _, r := range active {
			if r.AgentID == agentID || !r.Exclusive {
				continue
			}
			if Overlaps(pathPattern, r.PathPattern) {
				conflicts = append(conflicts, r)
			}
		}
	}

	var id int64
	err = e.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO file_reservations(project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, int64(projectID), int64(agentID), pathPattern, boolToInt(exclusive), reason, db.FormatTime(now), db.FormatTime(expires))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return AcquireResult{}, err
	}

	granted := Reservation{
		ID: core.ReservationId(id), ProjectID: projectID, AgentID: agentID, PathPattern: pathPattern,
		Exclusive: exclusive, Reason: reason, CreatedTS: now, ExpiresTS: expires,
	}
	return AcquireResult{Granted: granted, Conflicts: conflicts}, nil
}

// Renew extends id's expiry to now + newTTL. Returns false if id does not
// exist (spec §4.4: "not found is a result, not an error").
func (e *Engine) Renew(ctx context.Context, id core.ReservationId, newTTL time.Duration) (bool, error) {
	expires := db.FormatTime(timeNow().Add(newTTL))
	var found bool
	err := e.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE file_reservations SET expires_ts = ? WHERE id = ?", expires, int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})
	return found, err
}

// Release removes reservation id unconditionally. Returns false if it did
// not exist.
func (e *Engine) Release(ctx context.Context, id core.ReservationId) (bool, error) {
	var found bool
	err := e.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM file_reservations WHERE id = ?", int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})
	return found, err
}

// ReleaseByPath releases the reservation owned by agentID on the exact
// path_pattern path, if any, and returns its id.
func (e *Engine) ReleaseByPath(ctx context.Context, projectID core.ProjectId, agentID core.AgentId, path string) (core.ReservationId, bool, error) {
	var id int64
	var found bool
	err := e.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT id FROM file_reservations WHERE project_id = ? AND agent_id = ? AND path_pattern = ?",
			int64(projectID), int64(agentID), path)
		if err := row.Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		found = true
		_, err := tx.ExecContext(ctx, "DELETE FROM file_reservations WHERE id = ?", id)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return core.ReservationId(id), found, nil
}

// ForceRelease removes reservation id regardless of owning agent.
func (e *Engine) ForceRelease(ctx context.Context, id core.ReservationId) (bool, error) {
	return e.Release(ctx, id)
}

// ListActiveForProject returns every active reservation scoped to project.
func (e *Engine) ListActiveForProject(ctx context.Context, projectID core.ProjectId) ([]Reservation, error) {
	return e.listActive(ctx, projectID)
}

// ListAllActive returns every active reservation across all projects.
func (e *Engine) ListAllActive(ctx context.Context) ([]Reservation, error) {
	rows, err := e.db.DB().QueryContext(ctx, `
		SELECT id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts
		FROM file_reservations WHERE expires_ts > ? ORDER BY created_ts ASC`, db.FormatTime(timeNow()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (e *Engine) listActive(ctx context.Context, projectID core.ProjectId) ([]Reservation, error) {
	rows, err := e.db.DB().QueryContext(ctx, `
		SELECT id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts
		FROM file_reservations WHERE project_id = ? AND expires_ts > ? ORDER BY created_ts ASC`,
		int64(projectID), db.FormatTime(timeNow()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		var r Reservation
		var exclusive int
		var createdTS, expiresTS string
		if err := rows.Scan((*int64)(&r.ID), (*int64)(&r.ProjectID), (*int64)(&r.AgentID), &r.PathPattern, &exclusive, &r.Reason, &createdTS, &expiresTS); err != nil {
			return nil, err
		}
		r.Exclusive = exclusive != 0
		var err error
		if r.CreatedTS, err = db.ParseTime(createdTS); err != nil {
			return nil, err
		}
		if r.ExpiresTS, err = db.ParseTime(expiresTS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isGlob reports whether pattern contains any glob metacharacter doublestar
// recognizes (spec §4.4).
func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// literalPrefix returns the portion of pattern before its first glob
// metacharacter, used to test mixed-glob overlap conservatively (spec
// §4.4: "treat overlap as true whenever the literal prefix of one is a
// prefix of the literal prefix of the other").
func literalPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[")
	if idx == -1 {
		return pattern
	}
	return pattern[:idx]
}

// Overlaps implements spec §4.4's path overlap relation between two
// patterns (literal paths or globs). It is symmetric and reflexive (spec
// §8's "conflict symmetry" property), since every branch treats a and b
// interchangeably or tests a genuinely symmetric relation.
func Overlaps(a, b string) bool {
	if a == b {
		return true
	}
	aGlob, bGlob := isGlob(a), isGlob(b)

	switch {
	case !aGlob && !bGlob:
		return a == b
	case aGlob && !bGlob:
		ok, _ := doublestar.Match(a, b)
		return ok
	case !aGlob && bGlob:
		ok, _ := doublestar.Match(b, a)
		return ok
	default:
		pa, pb := literalPrefix(a), literalPrefix(b)
		return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
	}
}
