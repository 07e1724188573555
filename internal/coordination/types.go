// Package coordination implements CoordinationStore (spec §4.3): CRUD over
// projects, agents, messages, recipients, contact links, macros, and
// overseer messages, plus the combined relational-and-archive message send
// sequence.
package coordination

import (
	"time"

	"github.com/agentmail/coordinator/internal/core"
)

// Project is the top-level namespace (spec §3).
type Project struct {
	ID        core.ProjectId
	Slug      string
	HumanKey  string
	CreatedAt time.Time
}

// Agent is an actor within a project.
type Agent struct {
	ID                core.AgentId
	ProjectID         core.ProjectId
	Name              string
	Program           string
	Model             string
	TaskDescription   string
	InceptionTS       time.Time
	LastActiveTS      time.Time
	AttachmentsPolicy string
	ContactPolicy     core.ContactPolicy
}

// Message is an immutable mail item.
type Message struct {
	ID             core.MessageId
	ProjectID      core.ProjectId
	SenderAgentID  core.AgentId
	ThreadID       *string
	Subject        string
	BodyMD         string
	Importance     core.Importance
	AckRequired    bool
	CreatedTS      time.Time
	Attachments    []string
}

// MessageRecipient associates a message with an agent under a kind.
type MessageRecipient struct {
	ID        int64
	MessageID core.MessageId
	AgentID   core.AgentId
	Kind      core.RecipientKind
	ReadTS    *time.Time
	AckTS     *time.Time
}

// AgentLink is a directed pending/accepted contact relationship stored as
// an undirected edge (spec §9: "store as undirected edges with both
// endpoints, not object references").
type AgentLink struct {
	ID            core.AgentLinkId
	AProjectID    core.ProjectId
	AAgentID      core.AgentId
	BProjectID    core.ProjectId
	BAgentID      core.AgentId
	Reason        string
	Status        core.LinkStatus
	CreatedTS     time.Time
}

// MacroStep is one entry of Macro.Steps: a named call template.
type MacroStep struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

// Macro is a named, ordered list of call templates scoped to a project.
type Macro struct {
	ID          core.MacroId
	ProjectID   core.ProjectId
	Name        string
	Description string
	Steps       []MacroStep
}

// OverseerMessage is a standalone notice addressed to the human/overseer
// rather than to an agent mailbox.
type OverseerMessage struct {
	ID        core.OverseerMessageId
	ProjectID core.ProjectId
	Subject   string
	BodyMD    string
	CreatedTS time.Time
}

// SendInput is the caller-supplied content of a new message (spec §4.3
// steps 1-6).
type SendInput struct {
	SenderAgentID core.AgentId
	ThreadID      *string
	Subject       string
	BodyMD        string
	Importance    core.Importance
	AckRequired   bool
	To            []core.AgentId
	Cc            []core.AgentId
	Bcc           []core.AgentId
	Attachments   []string
}

// InboxEntry is one row of list_inbox_for_agent.
type InboxEntry struct {
	Message        Message
	SenderName     string
	RecipientKind  core.RecipientKind
	ReadTS         *time.Time
	AckTS          *time.Time
}

// ThreadSummary is one row of list_threads.
type ThreadSummary struct {
	ThreadID     string
	FirstSubject string
	Count        int
	LastActivity time.Time
}
