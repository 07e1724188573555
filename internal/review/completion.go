package review

import (
	"fmt"
	"strings"

	"github.com/agentmail/coordinator/internal/core"
)

// CriterionStatus is one (criterion, pass) pair of a CompletionReport.
type CriterionStatus struct {
	Criterion string
	Pass      bool
}

// QualityGateStatus is the four tri-state flags of a CompletionReport.
// A nil pointer means "not run"; the pointed-to bool is pass/fail.
type QualityGateStatus struct {
	Tests    *bool
	Lint     *bool
	Build    *bool
	Coverage *bool
}

// CompletionReport is the structured payload for `[COMPLETION]` messages
// (spec §4.5).
type CompletionReport struct {
	TaskID         string
	TaskTitle      string
	CommitID       string
	Branch         string
	FilesChanged   []string
	Summary        string
	CriteriaStatus []CriterionStatus
	QualityGates   QualityGateStatus
	Notes          string
}

const (
	sectionSummary   = "## Summary"
	sectionFiles     = "## Files Changed"
	sectionCriteria  = "## Acceptance Criteria"
	sectionGates     = "## Quality Gates"
	sectionNotes     = "## Notes"
)

// RenderMarkdown renders r to a Markdown document with the stable section
// order spec §4.5 requires: Summary, Files Changed, Acceptance Criteria,
// Quality Gates, Notes.
func (r CompletionReport) RenderMarkdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# [COMPLETION] %s\n\n", r.TaskTitle)
	fmt.Fprintf(&b, "task_id: %s\ncommit_id: %s\nbranch: %s\n\n", r.TaskID, r.CommitID, r.Branch)

	b.WriteString(sectionSummary + "\n\n")
	b.WriteString(r.Summary + "\n\n")

	b.WriteString(sectionFiles + "\n\n")
	for _, f := range r.FilesChanged {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	b.WriteString(sectionCriteria + "\n\n")
	for _, c := range r.CriteriaStatus {
		mark := "[ ]"
		if c.Pass {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "- %s %s\n", mark, c.Criterion)
	}
	b.WriteString("\n")

	b.WriteString(sectionGates + "\n\n")
	for _, g := range []struct {
		name string
		val  *bool
	}{
		{"tests", r.QualityGates.Tests},
		{"lint", r.QualityGates.Lint},
		{"build", r.QualityGates.Build},
		{"coverage", r.QualityGates.Coverage},
	} {
		fmt.Fprintf(&b, "- %s: %s\n", g.name, triStateLabel(g.val))
	}
	b.WriteString("\n")

	if r.Notes != "" {
		b.WriteString(sectionNotes + "\n\n")
		b.WriteString(r.Notes + "\n")
	}

	return b.String()
}

func triStateLabel(v *bool) string {
	if v == nil {
		return "not run"
	}
	if *v {
		return "pass"
	}
	return "fail"
}

// ParseCompletionReport re-extracts the named fields from a document
// produced by RenderMarkdown: task_id, commit_id, branch, and every
// (criterion, pass) pair (spec §8's CompletionReport round-trip law).
func ParseCompletionReport(doc string) (CompletionReport, error) {
	var r CompletionReport
	lines := strings.Split(doc, "\n")

	section := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "task_id:"):
			r.TaskID = strings.TrimSpace(strings.TrimPrefix(trimmed, "task_id:"))
			continue
		case strings.HasPrefix(trimmed, "commit_id:"):
			r.CommitID = strings.TrimSpace(strings.TrimPrefix(trimmed, "commit_id:"))
			continue
		case strings.HasPrefix(trimmed, "branch:"):
			r.Branch = strings.TrimSpace(strings.TrimPrefix(trimmed, "branch:"))
			continue
		case trimmed == sectionSummary, trimmed == sectionFiles, trimmed == sectionCriteria, trimmed == sectionGates, trimmed == sectionNotes:
			section = trimmed
			continue
		}

		switch section {
		case sectionCriteria:
			if strings.HasPrefix(trimmed, "- [") {
				pass := strings.HasPrefix(trimmed, "- [x]")
				criterion := strings.TrimSpace(trimmed[strings.Index(trimmed, "]")+1:])
				r.CriteriaStatus = append(r.CriteriaStatus, CriterionStatus{Criterion: criterion, Pass: pass})
			}
		case sectionFiles:
			if strings.HasPrefix(trimmed, "- ") {
				r.FilesChanged = append(r.FilesChanged, strings.TrimPrefix(trimmed, "- "))
			}
		}
	}

	if r.TaskID == "" {
		return CompletionReport{}, core.InvalidInput("task_id", "completion report missing task_id")
	}
	return r, nil
}
