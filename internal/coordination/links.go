package coordination

import (
	"context"
	"database/sql"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// ProposeLink creates a pending AgentLink between two agents, stored as an
// undirected edge (spec §9): both endpoints are recorded, not an object
// reference in either direction.
func (s *Store) ProposeLink(ctx context.Context, aProject core.ProjectId, aAgent core.AgentId, bProject core.ProjectId, bAgent core.AgentId, reason string) (AgentLink, error) {
	now := db.FormatTime(timeNow())
	var id int64
	err := s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO agent_links(a_project_id, a_agent_id, b_project_id, b_agent_id, reason, status, created_ts)
			VALUES (?, ?, ?, ?, ?, 'pending', ?)`, int64(aProject), int64(aAgent), int64(bProject), int64(bAgent), reason, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return AgentLink{}, err
	}
	ts, _ := db.ParseTime(now)
	return AgentLink{ID: core.AgentLinkId(id), AProjectID: aProject, AAgentID: aAgent, BProjectID: bProject, BAgentID: bAgent, Reason: reason, Status: core.LinkPending, CreatedTS: ts}, nil
}

// SetLinkStatus transitions link to status (accepted or rejected).
func (s *Store) SetLinkStatus(ctx context.Context, linkID core.AgentLinkId, status core.LinkStatus) error {
	return s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE agent_links SET status = ? WHERE id = ?", string(status), int64(linkID))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.NotFound("agent_link", "agent link %d not found", int64(linkID))
		}
		return nil
	})
}

// ListContacts selects every link where either endpoint is (projectID,
// agentID) and projects the "other" side (spec §9: "selects rows where
// either endpoint is the agent and projects the other side").
func (s *Store) ListContacts(ctx context.Context, projectID core.ProjectId, agentID core.AgentId) ([]AgentLink, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, a_project_id, a_agent_id, b_project_id, b_agent_id, reason, status, created_ts
		FROM agent_links
		WHERE (a_project_id = ? AND a_agent_id = ?) OR (b_project_id = ? AND b_agent_id = ?)
		ORDER BY created_ts DESC`, int64(projectID), int64(agentID), int64(projectID), int64(agentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentLink
	for rows.Next() {
		var l AgentLink
		var status, createdTS string
		if err := rows.Scan((*int64)(&l.ID), (*int64)(&l.AProjectID), (*int64)(&l.AAgentID), (*int64)(&l.BProjectID), (*int64)(&l.BAgentID), &l.Reason, &status, &createdTS); err != nil {
			return nil, err
		}
		l.Status = core.LinkStatus(status)
		ts, err := db.ParseTime(createdTS)
		if err != nil {
			return nil, err
		}
		l.CreatedTS = ts
		out = append(out, l)
	}
	return out, rows.Err()
}
