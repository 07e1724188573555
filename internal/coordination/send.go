package coordination

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentmail/coordinator/internal/archive"
	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// Send implements the six-step message send sequence of spec §4.3: insert
// the message and recipient rows in the relational transaction (steps
// 1-2), then compose and commit the on-disk documents in the git
// transaction (steps 3-5), returning the new MessageId (step 6). The order
// is fixed: database first, archive second (spec §4.2, §7 on inconsistency
// recovery).
func (s *Store) Send(ctx context.Context, projectID core.ProjectId, in SendInput) (core.MessageId, error) {
	if in.Subject == "" {
		return 0, core.InvalidInput("subject", "subject must not be empty")
	}
	if len(in.To) == 0 {
		return 0, core.InvalidInput("to", "message must have at least one \"to\" recipient")
	}
	if in.ThreadID != nil && *in.ThreadID == "" {
		in.ThreadID = nil // spec §8: empty thread_id is treated as null
	}

	attachmentsJSON, err := json.Marshal(in.Attachments)
	if err != nil {
		return 0, err
	}
	if in.Importance == "" {
		in.Importance = core.ImportanceNormal // spec §6 enum has no empty member; default applies uniformly to the db row, the archived document, and mailbox.json
	}

	now := db.FormatTime(timeNow())
	var messageID int64

	// Steps 1-2: the relational transaction.
	err = s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO messages(project_id, sender_agent_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(projectID), int64(in.SenderAgentID), in.ThreadID, in.Subject, in.BodyMD, string(in.Importance), boolToInt(in.AckRequired), now, string(attachmentsJSON))
		if err != nil {
			return err
		}
		messageID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		insertRecipient := func(agentID core.AgentId, kind core.RecipientKind) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO message_recipients(message_id, agent_id, kind) VALUES (?, ?, ?)", messageID, int64(agentID), string(kind))
			return err
		}
		for _, id := range in.To {
			if err := insertRecipient(id, core.RecipientTo); err != nil {
				return err
			}
		}
		for _, id := range in.Cc {
			if err := insertRecipient(id, core.RecipientCc); err != nil {
				return err
			}
		}
		for _, id := range in.Bcc {
			if err := insertRecipient(id, core.RecipientBcc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Steps 3-5: the git transaction. A failure here leaves the database
	// row committed but the archive missing the document; spec §4.2 and §7
	// direct callers to retry the write or rely on the mailbox.json/
	// agents.json reconciliation export on next successful write.
	if err := s.writeMessageDocuments(ctx, projectID, core.MessageId(messageID), in, now); err != nil {
		return core.MessageId(messageID), err
	}

	return core.MessageId(messageID), nil
}

func (s *Store) writeMessageDocuments(ctx context.Context, projectID core.ProjectId, messageID core.MessageId, in SendInput, createdTS string) error {
	project, err := s.projectByID(ctx, projectID)
	if err != nil {
		return err
	}
	sender, err := s.agentNameOrUnknown(ctx, in.SenderAgentID)
	if err != nil {
		return err
	}

	toNames := make([]string, 0, len(in.To))
	for _, id := range in.To {
		name, err := s.agentNameOrUnknown(ctx, id)
		if err != nil {
			return err
		}
		toNames = append(toNames, name)
	}
	ccNames := make([]string, 0, len(in.Cc))
	for _, id := range in.Cc {
		name, err := s.agentNameOrUnknown(ctx, id)
		if err != nil {
			return err
		}
		ccNames = append(ccNames, name)
	}
	bccNames := make([]string, 0, len(in.Bcc))
	for _, id := range in.Bcc {
		name, err := s.agentNameOrUnknown(ctx, id)
		if err != nil {
			return err
		}
		bccNames = append(bccNames, name)
	}

	created, err := db.ParseTime(createdTS)
	if err != nil {
		return err
	}

	fm := archive.MessageFrontmatter{
		ID:         int64(messageID),
		Project:    project.Slug,
		From:       sender,
		To:         toNames, // BCC and CC never appear here (spec §6)
		Subject:    in.Subject,
		ThreadID:   in.ThreadID,
		Created:    created.UTC().Format("2006-01-02T15-04-05Z"),
		Importance: string(in.Importance),
	}
	doc, err := archive.RenderMessageDocument(fm, in.BodyMD)
	if err != nil {
		return err
	}

	allRecipientNames := append(append(append([]string{}, toNames...), ccNames...), bccNames...)
	canonical, outbox, inboxes := archive.MessagePaths(project.Slug, created, in.Subject, int64(messageID), sender, allRecipientNames)

	allRecipients := strings.Join(append(append([]string{}, toNames...), ccNames...), ", ")
	commitMessage := fmt.Sprintf("mail: %s -> %s | %s", sender, allRecipients, in.Subject)

	paths := []string{canonical, outbox}
	if err := s.archive.WriteAndStagePath(canonical, doc); err != nil {
		return err
	}
	if err := s.archive.WriteAndStagePath(outbox, doc); err != nil {
		return err
	}
	for _, recipientPath := range inboxes {
		if err := s.archive.WriteAndStagePath(recipientPath, doc); err != nil {
			return err
		}
		paths = append(paths, recipientPath)
	}

	_, err = s.archive.CommitPaths(paths, commitMessage)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) projectByID(ctx context.Context, id core.ProjectId) (Project, error) {
	row := s.db.DB().QueryRowContext(ctx, "SELECT id, slug, human_key, created_at FROM projects WHERE id = ?", int64(id))
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return Project{}, core.NotFound("project", "project %d not found", int64(id))
	}
	return p, err
}

// agentNameOrUnknown resolves an agent's display name, falling back to the
// literal string "unknown" (spec §7: the only permitted lossy fallback).
func (s *Store) agentNameOrUnknown(ctx context.Context, id core.AgentId) (string, error) {
	a, err := s.GetAgent(ctx, id)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return "unknown", nil
		}
		return "", err
	}
	return a.Name, nil
}
