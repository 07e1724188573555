package coordination

import (
	"context"
	"encoding/json"
	"path"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

// exportedMessage mirrors a Message for mailbox.json export (spec §6):
// every field round-trips by id, matching {subject, body_md, importance,
// thread_id, created_ts}.
type exportedMessage struct {
	ID          int64    `json:"id"`
	ProjectID   int64    `json:"project_id"`
	SenderID    int64    `json:"sender_agent_id"`
	ThreadID    *string  `json:"thread_id"`
	Subject     string   `json:"subject"`
	BodyMD      string   `json:"body_md"`
	Importance  string   `json:"importance"`
	AckRequired bool     `json:"ack_required"`
	CreatedTS   string   `json:"created_ts"`
	Attachments []string `json:"attachments"`
}

type exportedAgent struct {
	ID                int64  `json:"id"`
	ProjectID         int64  `json:"project_id"`
	Name              string `json:"name"`
	Program           string `json:"program"`
	Model             string `json:"model"`
	TaskDescription   string `json:"task_description"`
	InceptionTS       string `json:"inception_ts"`
	LastActiveTS      string `json:"last_active_ts"`
	AttachmentsPolicy string `json:"attachments_policy"`
	ContactPolicy     string `json:"contact_policy"`
}

// ExportMailbox re-serializes every message and agent of project to
// projects/<slug>/mailbox.json and agents.json, pretty-printed, and
// commits both. This is the reconciliation export spec §4.2/§7 calls for
// after a git/DB divergence, and doubles as the mailbox export round-trip
// of spec §8.
func (s *Store) ExportMailbox(ctx context.Context, projectID core.ProjectId) error {
	project, err := s.projectByID(ctx, projectID)
	if err != nil {
		return err
	}

	messages, err := s.allMessages(ctx, projectID)
	if err != nil {
		return err
	}
	agents, err := s.allAgents(ctx, projectID)
	if err != nil {
		return err
	}

	messagesJSON, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}
	agentsJSON, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return err
	}

	mailboxPath := path.Join("projects", project.Slug, "mailbox.json")
	agentsPath := path.Join("projects", project.Slug, "agents.json")
	if err := s.archive.WriteAndStagePath(mailboxPath, messagesJSON); err != nil {
		return err
	}
	if err := s.archive.WriteAndStagePath(agentsPath, agentsJSON); err != nil {
		return err
	}

	_, err = s.archive.CommitPaths([]string{mailboxPath, agentsPath}, "chore: export mailbox and agents")
	return err
}

func (s *Store) allMessages(ctx context.Context, projectID core.ProjectId) ([]exportedMessage, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, project_id, sender_agent_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments
		FROM messages WHERE project_id = ? ORDER BY id ASC`, int64(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exportedMessage
	for rows.Next() {
		m, err := scanOneMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exportedMessage{
			ID: int64(m.ID), ProjectID: int64(m.ProjectID), SenderID: int64(m.SenderAgentID),
			ThreadID: m.ThreadID, Subject: m.Subject, BodyMD: m.BodyMD, Importance: string(m.Importance),
			AckRequired: m.AckRequired, CreatedTS: db.FormatTime(m.CreatedTS), Attachments: m.Attachments,
		})
	}
	return out, rows.Err()
}

func (s *Store) allAgents(ctx context.Context, projectID core.ProjectId) ([]exportedAgent, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		FROM agents WHERE project_id = ? ORDER BY id ASC`, int64(projectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []exportedAgent
	for rows.Next() {
		var id, pid int64
		var name, program, model, taskDescription, inception, lastActive, attachmentsPolicy, contactPolicy string
		if err := rows.Scan(&id, &pid, &name, &program, &model, &taskDescription, &inception, &lastActive, &attachmentsPolicy, &contactPolicy); err != nil {
			return nil, err
		}
		out = append(out, exportedAgent{
			ID: id, ProjectID: pid, Name: name, Program: program, Model: model, TaskDescription: taskDescription,
			InceptionTS: inception, LastActiveTS: lastActive, AttachmentsPolicy: attachmentsPolicy, ContactPolicy: contactPolicy,
		})
	}
	return out, rows.Err()
}
