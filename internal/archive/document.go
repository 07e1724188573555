package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmail/coordinator/internal/core"
)

const frontmatterDelimiter = "---json"
const frontmatterClose = "---"

// MessageFrontmatter is the `{id, project, from, to, subject, thread_id,
// created, importance}` block prescribed verbatim in spec §6. BCC
// recipients are never present in To.
type MessageFrontmatter struct {
	ID         int64    `json:"id"`
	Project    string   `json:"project"`
	From       string   `json:"from"`
	To         []string `json:"to"`
	Subject    string   `json:"subject"`
	ThreadID   *string  `json:"thread_id"`
	Created    string   `json:"created"`
	Importance string   `json:"importance"`
}

// RenderMessageDocument produces the on-disk message document: a
// `---json ... ---` front-matter block (spec §6) followed by the body
// verbatim. The delimiter-scanning shape mirrors the teacher's
// internal/marshal/frontmatter.go Parse/Render pair, adapted from YAML to
// the JSON format the spec mandates.
func RenderMessageDocument(fm MessageFrontmatter, bodyMD string) ([]byte, error) {
	fmBytes, err := json.MarshalIndent(fm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter)
	buf.WriteString("\n")
	buf.Write(fmBytes)
	buf.WriteString("\n")
	buf.WriteString(frontmatterClose)
	buf.WriteString("\n\n")
	buf.WriteString(bodyMD)
	return buf.Bytes(), nil
}

// ParseMessageDocument splits a message document into its frontmatter and
// body, the reverse of RenderMessageDocument.
func ParseMessageDocument(content []byte) (MessageFrontmatter, string, error) {
	str := string(content)
	if !strings.HasPrefix(str, frontmatterDelimiter) {
		return MessageFrontmatter{}, "", core.InvalidInput("content", "message document missing %q delimiter", frontmatterDelimiter)
	}

	rest := str[len(frontmatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontmatterClose)
	if idx == -1 {
		return MessageFrontmatter{}, "", core.InvalidInput("content", "unclosed frontmatter block")
	}

	fmJSON := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len("\n"+frontmatterClose):], "\n")
	body = strings.TrimPrefix(body, "\n")

	var fm MessageFrontmatter
	if err := json.Unmarshal([]byte(fmJSON), &fm); err != nil {
		return MessageFrontmatter{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}

// MessageFilename produces the "<iso-slug-id>.md" filename shared by the
// canonical message file and every inbox/outbox copy (spec §4.2).
func MessageFilename(created time.Time, subject string, id int64) string {
	iso := created.UTC().Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("%s-%s-%d.md", iso, slugify(subject), id)
}

// MessagePaths returns the canonical path plus the paths named in spec
// §4.2's directory layout for the sender's outbox and each recipient's
// inbox copy.
func MessagePaths(slug string, created time.Time, subject string, id int64, senderName string, recipientNames []string) (canonical, outbox string, inboxes map[string]string) {
	filename := MessageFilename(created, subject, id)
	year := created.UTC().Format("2006")
	month := created.UTC().Format("01")

	canonical = fmt.Sprintf("projects/%s/messages/%s/%s/%s", slug, year, month, filename)
	outbox = fmt.Sprintf("projects/%s/agents/%s/outbox/%s/%s/%s", slug, senderName, year, month, filename)

	inboxes = make(map[string]string, len(recipientNames))
	for _, name := range recipientNames {
		inboxes[name] = fmt.Sprintf("projects/%s/agents/%s/inbox/%s/%s/%s", slug, name, year, month, filename)
	}
	return canonical, outbox, inboxes
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "message"
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}

// AttachmentPath returns the path under which an attachment's bytes are
// stored (spec §4.2's attachments/<attachment_id>/<filename>).
func AttachmentPath(slug, attachmentID, filename string) string {
	return fmt.Sprintf("projects/%s/attachments/%s/%s", slug, attachmentID, filename)
}
