package coordination

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// Search wraps query in `"…"` to force FTS5 phrase search, escaping any
// inner `"` as `""` (spec §4.3, §8), and returns matching messages ordered
// by created_ts desc.
func (s *Store) Search(ctx context.Context, projectID core.ProjectId, query string, limit int) ([]Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.FtsError(query, "search query must not be empty")
	}
	escaped := strings.ReplaceAll(query, `"`, `""`)
	phrase := `"` + escaped + `"`

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT m.id, m.project_id, m.sender_agent_id, m.thread_id, m.subject, m.body_md, m.importance, m.ack_required, m.created_ts, m.attachments
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE f.messages_fts MATCH ? AND m.project_id = ?
		ORDER BY m.created_ts DESC
		LIMIT ?`, phrase, int64(projectID), limitOrAll(limit))
	if err != nil {
		return nil, core.FtsError(query, "search failed: %v", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListByThread returns every message sharing thread_id within project,
// oldest first.
func (s *Store) ListByThread(ctx context.Context, projectID core.ProjectId, threadID string) ([]Message, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, project_id, sender_agent_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments
		FROM messages WHERE project_id = ? AND thread_id = ? ORDER BY created_ts ASC`, int64(projectID), threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListThreads groups messages by thread_id (excluding null), returning
// (thread_id, earliest subject, count, latest activity) sorted by latest
// activity descending.
func (s *Store) ListThreads(ctx context.Context, projectID core.ProjectId, limit int) ([]ThreadSummary, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT thread_id, MIN(subject), COUNT(*), MAX(created_ts)
		FROM messages
		WHERE project_id = ? AND thread_id IS NOT NULL
		GROUP BY thread_id
		ORDER BY MAX(created_ts) DESC
		LIMIT ?`, int64(projectID), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThreadSummary
	for rows.Next() {
		var t ThreadSummary
		var lastActivity string
		if err := rows.Scan(&t.ThreadID, &t.FirstSubject, &t.Count, &lastActivity); err != nil {
			return nil, err
		}
		ts, err := db.ParseTime(lastActivity)
		if err != nil {
			return nil, err
		}
		t.LastActivity = ts
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListInboxForAgent returns messages addressed to agentID (as to, cc, or
// bcc) newest first. BCC visibility follows spec §4.3: only the BCC
// recipient themself sees their row.
func (s *Store) ListInboxForAgent(ctx context.Context, projectID core.ProjectId, agentID core.AgentId, limit int) ([]InboxEntry, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT m.id, m.project_id, m.sender_agent_id, m.thread_id, m.subject, m.body_md, m.importance, m.ack_required, m.created_ts, m.attachments,
		       a.name, r.kind, r.read_ts, r.ack_ts
		FROM message_recipients r
		JOIN messages m ON m.id = r.message_id
		JOIN agents a ON a.id = m.sender_agent_id
		WHERE m.project_id = ? AND r.agent_id = ?
		ORDER BY m.created_ts DESC
		LIMIT ?`, int64(projectID), int64(agentID), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInboxEntries(rows)
}

// ListOutboxForAgent returns messages sent by agentID, newest first.
func (s *Store) ListOutboxForAgent(ctx context.Context, projectID core.ProjectId, agentID core.AgentId, limit int) ([]Message, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, project_id, sender_agent_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments
		FROM messages WHERE project_id = ? AND sender_agent_id = ? ORDER BY created_ts DESC LIMIT ?`,
		int64(projectID), int64(agentID), limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkRead sets read_ts = now for (messageID, agentID) where currently
// null. Idempotent (spec §4.3, §8).
func (s *Store) MarkRead(ctx context.Context, messageID core.MessageId, agentID core.AgentId) error {
	now := db.FormatTime(timeNow())
	return s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE message_recipients SET read_ts = ? WHERE message_id = ? AND agent_id = ? AND read_ts IS NULL`,
			now, int64(messageID), int64(agentID))
		return err
	})
}

// Acknowledge sets ack_ts = now and fills read_ts if unset. Idempotent
// (spec §4.3, §8): a second call with ack_ts already set leaves read_ts
// and ack_ts unchanged.
func (s *Store) Acknowledge(ctx context.Context, messageID core.MessageId, agentID core.AgentId) error {
	now := db.FormatTime(timeNow())
	return s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE message_recipients
			SET ack_ts = COALESCE(ack_ts, ?), read_ts = COALESCE(read_ts, ?)
			WHERE message_id = ? AND agent_id = ?`,
			now, now, int64(messageID), int64(agentID))
		return err
	})
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		m, err := scanOneMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOneMessage(row rowScanner) (Message, error) {
	var m Message
	var threadID sql.NullString
	var importance, createdTS, attachmentsJSON string
	var ackRequired int
	if err := row.Scan((*int64)(&m.ID), (*int64)(&m.ProjectID), (*int64)(&m.SenderAgentID), &threadID, &m.Subject, &m.BodyMD, &importance, &ackRequired, &createdTS, &attachmentsJSON); err != nil {
		return Message{}, err
	}
	if threadID.Valid {
		m.ThreadID = &threadID.String
	}
	m.Importance = core.ParseImportance(importance)
	m.AckRequired = ackRequired != 0
	ts, err := db.ParseTime(createdTS)
	if err != nil {
		return Message{}, err
	}
	m.CreatedTS = ts
	m.Attachments = parseAttachments(attachmentsJSON)
	return m, nil
}

func scanInboxEntries(rows *sql.Rows) ([]InboxEntry, error) {
	var out []InboxEntry
	for rows.Next() {
		var m Message
		var threadID sql.NullString
		var importance, createdTS, attachmentsJSON, senderName, kind string
		var ackRequired int
		var readTS, ackTS sql.NullString
		if err := rows.Scan((*int64)(&m.ID), (*int64)(&m.ProjectID), (*int64)(&m.SenderAgentID), &threadID, &m.Subject, &m.BodyMD, &importance, &ackRequired, &createdTS, &attachmentsJSON,
			&senderName, &kind, &readTS, &ackTS); err != nil {
			return nil, err
		}
		if threadID.Valid {
			m.ThreadID = &threadID.String
		}
		m.Importance = core.ParseImportance(importance)
		m.AckRequired = ackRequired != 0
		ts, err := db.ParseTime(createdTS)
		if err != nil {
			return nil, err
		}
		m.CreatedTS = ts
		m.Attachments = parseAttachments(attachmentsJSON)

		entry := InboxEntry{Message: m, SenderName: senderName, RecipientKind: core.RecipientKind(kind)}
		if readTS.Valid {
			t, err := db.ParseTime(readTS.String)
			if err != nil {
				return nil, err
			}
			entry.ReadTS = &t
		}
		if ackTS.Valid {
			t, err := db.ParseTime(ackTS.String)
			if err != nil {
				return nil, err
			}
			entry.AckTS = &t
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func parseAttachments(raw string) []string {
	var out []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
