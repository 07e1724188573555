package coordination

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentmail/coordinator/internal/core"
)

// DeleteProject removes project and every row that references it, in the
// fixed order spec §4.3 prescribes so foreign keys are satisfied without
// DB-level cascade, then removes projects/<slug>/ from the archive with a
// "chore: delete project <slug>" commit.
func (s *Store) DeleteProject(ctx context.Context, projectID core.ProjectId) error {
	project, err := s.projectByID(ctx, projectID)
	if err != nil {
		return err
	}

	err = s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		pid := int64(projectID)
		steps := []struct {
			query string
			args  []any
		}{
			{`DELETE FROM message_recipients WHERE message_id IN (SELECT id FROM messages WHERE project_id = ?)`, []any{pid}},
			{`DELETE FROM messages WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM file_reservations WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM build_slots WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM macros WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM overseer_messages WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM agent_links WHERE a_project_id = ? OR b_project_id = ?`, []any{pid, pid}},
			{`DELETE FROM project_sibling_suggestions WHERE project_id = ? OR suggested_project_id = ?`, []any{pid, pid}},
			{`DELETE FROM agents WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM product_project_links WHERE project_id = ?`, []any{pid}},
			{`DELETE FROM projects WHERE id = ?`, []any{pid}},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	_, err = s.archive.CommitDeletion("projects/"+project.Slug, fmt.Sprintf("chore: delete project %s", project.Slug))
	return err
}
