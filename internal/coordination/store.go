package coordination

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmail/coordinator/internal/archive"
	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// timeNow is a package-level seam so tests can observe or freeze time
// without a clock interface threaded through every call.
var timeNow = func() time.Time { return time.Now().UTC() }

// builtinMacros is auto-installed on every new project (spec §3: "built-in
// macros must be auto-installed on project creation"), grounded on the
// three escalation/review flows spec §4.5-§4.6 name.
var builtinMacros = []struct {
	name, description string
	steps             []MacroStep
}{
	{
		name:        "review-and-merge",
		description: "Move a completed task through review to merge",
		steps: []MacroStep{
			{Op: "send-message", Params: map[string]any{"subject_prefix": "[REVIEWING]"}},
			{Op: "await-reply"},
			{Op: "send-message", Params: map[string]any{"subject_prefix": "[APPROVED]"}},
		},
	},
	{
		name:        "escalate-stale",
		description: "Escalate a thread that has gone stale past its staleness window",
		steps: []MacroStep{
			{Op: "find-abandoned-tasks"},
			{Op: "send-message", Params: map[string]any{"subject_prefix": "[ESCALATION]"}},
		},
	},
	{
		name:        "daily-digest",
		description: "Summarize the day's activity for the overseer",
		steps: []MacroStep{
			{Op: "activity-timeline"},
			{Op: "overseer-message"},
		},
	},
}

// Store is CoordinationStore: the relational CRUD surface plus the
// combined relational/archive message send sequence (spec §4.3).
type Store struct {
	db      *db.Store
	archive *archive.Archive
	log     zerolog.Logger
}

// New wires a CoordinationStore to its underlying relational store and
// archive. Neither is owned exclusively by Store — both may be shared with
// other subsystems (ReservationEngine, BuildSlotManager) that address the
// same database.
func New(store *db.Store, arc *archive.Archive, log zerolog.Logger) *Store {
	return &Store{db: store, archive: arc, log: log}
}

// CreateProject inserts a new project and seeds its built-in macros and
// archive directory. slug and human_key must both be unique.
func (s *Store) CreateProject(ctx context.Context, slug, humanKey string) (Project, error) {
	if slug == "" {
		return Project{}, core.InvalidInput("slug", "slug must not be empty")
	}
	if humanKey == "" {
		return Project{}, core.InvalidInput("human_key", "human_key must not be empty")
	}

	now := db.FormatTime(timeNow())
	var id int64
	err := s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO projects(slug, human_key, created_at) VALUES (?, ?, ?)", slug, humanKey, now)
		if err != nil {
			if isUniqueViolation(err) {
				return core.InvalidInput("slug", "project slug or human_key %q already exists", slug)
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Project{}, err
	}

	if err := s.archive.EnsureProject(slug); err != nil {
		return Project{}, err
	}

	for _, m := range builtinMacros {
		if _, err := s.CreateMacro(ctx, core.ProjectId(id), m.name, m.description, m.steps); err != nil {
			return Project{}, err
		}
	}

	return Project{ID: core.ProjectId(id), Slug: slug, HumanKey: humanKey, CreatedAt: timeNow()}, nil
}

// FindProject resolves a project by slug or human_key, accepting either
// (spec §6: "projects are addressable by either slug or human_key").
func (s *Store) FindProject(ctx context.Context, key string) (Project, error) {
	row := s.db.DB().QueryRowContext(ctx, "SELECT id, slug, human_key, created_at FROM projects WHERE slug = ? OR human_key = ?", key, key)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return Project{}, s.notFoundWithSuggestions(ctx, "project", key)
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func scanProject(row *sql.Row) (Project, error) {
	var p Project
	var createdAt string
	if err := row.Scan((*int64)(&p.ID), &p.Slug, &p.HumanKey, &createdAt); err != nil {
		return Project{}, err
	}
	ts, err := db.ParseTime(createdAt)
	if err != nil {
		return Project{}, err
	}
	p.CreatedAt = ts
	return p, nil
}

// notFoundWithSuggestions builds a NotFound error carrying up to 3
// near-match suggestions computed by edit distance over existing slugs and
// human_keys (spec §6).
func (s *Store) notFoundWithSuggestions(ctx context.Context, entity, key string) error {
	rows, err := s.db.DB().QueryContext(ctx, "SELECT slug, human_key FROM projects")
	if err != nil {
		return core.NotFound(entity, "%s %q not found", entity, key)
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var slug, humanKey string
		if err := rows.Scan(&slug, &humanKey); err != nil {
			continue
		}
		candidates = append(candidates, slug, humanKey)
	}

	suggestions := nearMatches(key, candidates, 3)
	e := core.NotFound(entity, "%s %q not found", entity, key)
	if len(suggestions) > 0 {
		e = e.WithData("suggestions", suggestions)
	}
	return e
}

// nearMatches ranks candidates by Levenshtein distance to key, ascending,
// and returns the top n.
func nearMatches(key string, candidates []string, n int) []string {
	type scored struct {
		value string
		dist  int
	}
	seen := map[string]bool{}
	var scoredList []scored
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		scoredList = append(scoredList, scored{value: c, dist: levenshtein(key, c)})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].dist != scoredList[j].dist {
			return scoredList[i].dist < scoredList[j].dist
		}
		return scoredList[i].value < scoredList[j].value
	})
	if len(scoredList) > n {
		scoredList = scoredList[:n]
	}
	out := make([]string, len(scoredList))
	for i, sc := range scoredList {
		out[i] = sc.value
	}
	return out
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// CreateAgent inserts a new agent under project. name must match
// [A-Za-z0-9_-]+ and be unique within the project.
func (s *Store) CreateAgent(ctx context.Context, projectID core.ProjectId, name, program, model, taskDescription string) (Agent, error) {
	if !agentNamePattern.MatchString(name) {
		return Agent{}, core.InvalidInput("name", "agent name %q must match [A-Za-z0-9_-]+", name)
	}

	now := db.FormatTime(timeNow())
	var id int64
	err := s.db.WithWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO agents(project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', 'manual')`, int64(projectID), name, program, model, taskDescription, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return core.InvalidInput("name", "agent name %q already exists in this project", name)
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Agent{}, err
	}

	return s.GetAgent(ctx, core.AgentId(id))
}

// GetAgent returns an agent by id.
func (s *Store) GetAgent(ctx context.Context, id core.AgentId) (Agent, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		FROM agents WHERE id = ?`, int64(id))
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return Agent{}, core.NotFound("agent", "agent %d not found", int64(id))
	}
	return a, err
}

// FindAgentByName looks up an agent by (project, name).
func (s *Store) FindAgentByName(ctx context.Context, projectID core.ProjectId, name string) (Agent, error) {
	row := s.db.DB().QueryRowContext(ctx, `SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		FROM agents WHERE project_id = ? AND name = ?`, int64(projectID), name)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return Agent{}, core.NotFound("agent", "agent %q not found in project %d", name, int64(projectID))
	}
	return a, err
}

func scanAgent(row *sql.Row) (Agent, error) {
	var a Agent
	var inception, lastActive, contactPolicy string
	if err := row.Scan((*int64)(&a.ID), (*int64)(&a.ProjectID), &a.Name, &a.Program, &a.Model, &a.TaskDescription, &inception, &lastActive, &a.AttachmentsPolicy, &contactPolicy); err != nil {
		return Agent{}, err
	}
	var err error
	if a.InceptionTS, err = db.ParseTime(inception); err != nil {
		return Agent{}, err
	}
	if a.LastActiveTS, err = db.ParseTime(lastActive); err != nil {
		return Agent{}, err
	}
	a.ContactPolicy = core.ParseContactPolicy(contactPolicy)
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsFold(msg, "unique") || containsFold(msg, "constraint")
}

func containsFold(haystack, needle string) bool {
	h := []rune(haystack)
	n := []rune(needle)
	lh := len(h)
	ln := len(n)
	if ln == 0 || ln > lh {
		return ln == 0
	}
	toLower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+ln <= lh; i++ {
		match := true
		for j := 0; j < ln; j++ {
			if toLower(h[i+j]) != toLower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
