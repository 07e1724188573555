package coordination

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// CreateMacro inserts a new macro scoped to project. name must be unique
// within the project.
func (s *Store) CreateMacro(ctx context.Context, projectID core.ProjectId, name, description string, steps []MacroStep) (Macro, error) {
	if name == "" {
		return Macro{}, core.InvalidInput("name", "macro name must not be empty")
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return Macro{}, err
	}

	var id int64
	err = s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO macros(project_id, name, description, steps) VALUES (?, ?, ?, ?)",
			int64(projectID), name, description, string(stepsJSON))
		if err != nil {
			if isUniqueViolation(err) {
				return core.InvalidInput("name", "macro %q already exists in this project", name)
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Macro{}, err
	}

	return Macro{ID: core.MacroId(id), ProjectID: projectID, Name: name, Description: description, Steps: steps}, nil
}

// ListMacros returns every macro scoped to project, ordered by name.
func (s *Store) ListMacros(ctx context.Context, projectID core.ProjectId) ([]Macro, error) {
	rows, err := s.db.DB().QueryContext(ctx, "SELECT id, project_id, name, description, steps FROM macros WHERE project_id = ? ORDER BY name", int64(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Macro
	for rows.Next() {
		var m Macro
		var stepsJSON string
		if err := rows.Scan((*int64)(&m.ID), (*int64)(&m.ProjectID), &m.Name, &m.Description, &stepsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(stepsJSON), &m.Steps); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FindMacro looks up a macro by (project, name).
func (s *Store) FindMacro(ctx context.Context, projectID core.ProjectId, name string) (Macro, error) {
	row := s.db.DB().QueryRowContext(ctx, "SELECT id, project_id, name, description, steps FROM macros WHERE project_id = ? AND name = ?", int64(projectID), name)
	var m Macro
	var stepsJSON string
	err := row.Scan((*int64)(&m.ID), (*int64)(&m.ProjectID), &m.Name, &m.Description, &stepsJSON)
	if err == sql.ErrNoRows {
		return Macro{}, core.NotFound("macro", "macro %q not found", name)
	}
	if err != nil {
		return Macro{}, err
	}
	if err := json.Unmarshal([]byte(stepsJSON), &m.Steps); err != nil {
		return Macro{}, err
	}
	return m, nil
}

// CreateOverseerMessage records a standalone notice addressed to the human
// overseer rather than to an agent mailbox.
func (s *Store) CreateOverseerMessage(ctx context.Context, projectID core.ProjectId, subject, bodyMD string) (OverseerMessage, error) {
	now := db.FormatTime(timeNow())
	var id int64
	err := s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO overseer_messages(project_id, subject, body_md, created_ts) VALUES (?, ?, ?, ?)",
			int64(projectID), subject, bodyMD, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return OverseerMessage{}, err
	}
	ts, _ := db.ParseTime(now)
	return OverseerMessage{ID: core.OverseerMessageId(id), ProjectID: projectID, Subject: subject, BodyMD: bodyMD, CreatedTS: ts}, nil
}

// ListOverseerMessages returns every overseer message for project, newest
// first.
func (s *Store) ListOverseerMessages(ctx context.Context, projectID core.ProjectId, limit int) ([]OverseerMessage, error) {
	rows, err := s.db.DB().QueryContext(ctx, "SELECT id, project_id, subject, body_md, created_ts FROM overseer_messages WHERE project_id = ? ORDER BY created_ts DESC LIMIT ?",
		int64(projectID), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverseerMessage
	for rows.Next() {
		var m OverseerMessage
		var createdTS string
		if err := rows.Scan((*int64)(&m.ID), (*int64)(&m.ProjectID), &m.Subject, &m.BodyMD, &createdTS); err != nil {
			return nil, err
		}
		ts, err := db.ParseTime(createdTS)
		if err != nil {
			return nil, err
		}
		m.CreatedTS = ts
		out = append(out, m)
	}
	return out, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1 // sqlite treats LIMIT -1 as "no limit"
	}
	return limit
}
