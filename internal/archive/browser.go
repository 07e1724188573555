package archive

import (
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/agentmail/coordinator/internal/core"
)

// activityTimelineCommitCap bounds the cost of activity_timeline's
// per-commit file-change enumeration (spec §4.7: "capped at the first 500
// commits in range").
const activityTimelineCommitCap = 500

// CommitFilter narrows list_commits (spec §4.7). Path is accepted but
// intentionally unimplemented — spec §9 flags it as a declared-but-dormant
// filter in the source system and requires implementations either honor it
// or explicitly document that they don't. This implementation documents:
// Path is ignored.
type CommitFilter struct {
	AuthorSubstring  string
	Since, Until     time.Time
	MessageSubstring string
	Path             string // intentionally unimplemented; see doc comment
}

// CommitSummary is a single entry in list_commits' result.
type CommitSummary struct {
	Hash    string
	Author  string
	Email   string
	When    time.Time
	Message string
}

// ListCommits returns commits reachable from HEAD matching filter, newest
// first, capped at limit. An empty repository (no HEAD) returns an empty
// slice, not an error (spec §4.7 failure semantics).
func (a *Archive) ListCommits(filter CommitFilter, limit int) ([]CommitSummary, error) {
	head, err := a.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, core.GitError(err, "resolve HEAD")
	}

	iter, err := a.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, core.GitError(err, "walk commit log")
	}
	defer iter.Close()

	var out []CommitSummary
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return storerStop
		}
		if !filter.Since.IsZero() && c.Author.When.Before(filter.Since) {
			return storerStop
		}
		if !filter.Until.IsZero() && c.Author.When.After(filter.Until) {
			return nil
		}
		if filter.AuthorSubstring != "" && !strings.Contains(c.Author.Name, filter.AuthorSubstring) && !strings.Contains(c.Author.Email, filter.AuthorSubstring) {
			return nil
		}
		if filter.MessageSubstring != "" && !strings.Contains(c.Message, filter.MessageSubstring) {
			return nil
		}
		out = append(out, CommitSummary{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
			Message: strings.TrimSpace(c.Message),
		})
		return nil
	})
	if err != nil && err != storerStop {
		return nil, core.GitError(err, "iterate commit log")
	}
	return out, nil
}

// sentinel used to short-circuit object.CommitIter.ForEach without
// treating the stop as a real error.
var storerStop = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "stop" }

// CommitDetails describes one commit's parents and file-level diff
// against its first parent (spec §4.7).
type CommitDetails struct {
	Hash      string
	Parents   []string
	Author    string
	Email     string
	When      time.Time
	Message   string
	Added     []string
	Modified  []string
	Deleted   []string
}

// CommitDetails returns parents plus added/modified/deleted file lists for
// sha, derived from diffing against its first parent. A root commit (no
// parents) reports every file as Added.
func (a *Archive) CommitDetails(sha string) (*CommitDetails, error) {
	hash, err := a.resolveHash(sha)
	if err != nil {
		return nil, err
	}

	c, err := a.repo.CommitObject(hash)
	if err != nil {
		return nil, core.GitError(err, "load commit %s", sha)
	}

	det := &CommitDetails{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
		Message: strings.TrimSpace(c.Message),
	}
	for _, p := range c.ParentHashes {
		det.Parents = append(det.Parents, p.String())
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, core.GitError(err, "load tree for %s", sha)
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, core.GitError(err, "load parent of %s", sha)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, core.GitError(err, "load parent tree of %s", sha)
		}
	}

	changes, err := diffTrees(parentTree, tree)
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		switch ch.action {
		case changeInsert:
			det.Added = append(det.Added, ch.path)
		case changeModify:
			det.Modified = append(det.Modified, ch.path)
		case changeDelete:
			det.Deleted = append(det.Deleted, ch.path)
		}
	}
	return det, nil
}

type changeAction int

const (
	changeInsert changeAction = iota
	changeModify
	changeDelete
)

type treeChange struct {
	path   string
	action changeAction
}

// diffTrees computes a file-level diff between an (optionally nil) parent
// tree and a tree, without relying on go-git's heavier object.DiffTree
// patch machinery — this module only needs paths and actions, not hunks.
func diffTrees(from, to *object.Tree) ([]treeChange, error) {
	fromFiles := map[string]plumbing.Hash{}
	if from != nil {
		fileIter := from.Files()
		defer fileIter.Close()
		if err := fileIter.ForEach(func(f *object.File) error {
			fromFiles[f.Name] = f.Hash
			return nil
		}); err != nil {
			return nil, core.GitError(err, "enumerate parent tree files")
		}
	}

	toFiles := map[string]plumbing.Hash{}
	toIter := to.Files()
	defer toIter.Close()
	if err := toIter.ForEach(func(f *object.File) error {
		toFiles[f.Name] = f.Hash
		return nil
	}); err != nil {
		return nil, core.GitError(err, "enumerate tree files")
	}

	var out []treeChange
	for p, hash := range toFiles {
		if oldHash, existed := fromFiles[p]; !existed {
			out = append(out, treeChange{path: p, action: changeInsert})
		} else if oldHash != hash {
			out = append(out, treeChange{path: p, action: changeModify})
		}
	}
	for p := range fromFiles {
		if _, stillExists := toFiles[p]; !stillExists {
			out = append(out, treeChange{path: p, action: changeDelete})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// TreeEntry is one entry in list_files_at's result.
type TreeEntry struct {
	Name  string
	IsDir bool
}

// ListFilesAt returns the entries of dirPath at commit sha, directories
// first then by name (spec §4.7).
func (a *Archive) ListFilesAt(sha, dirPath string) ([]TreeEntry, error) {
	hash, err := a.resolveHash(sha)
	if err != nil {
		return nil, err
	}
	c, err := a.repo.CommitObject(hash)
	if err != nil {
		return nil, core.GitError(err, "load commit %s", sha)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, core.GitError(err, "load tree for %s", sha)
	}

	if dirPath != "" && dirPath != "." {
		tree, err = tree.Tree(dirPath)
		if err != nil {
			if err == object.ErrDirectoryNotFound {
				return nil, nil
			}
			return nil, core.GitError(err, "resolve directory %s at %s", dirPath, sha)
		}
	}

	var entries []TreeEntry
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{Name: e.Name, IsDir: e.Mode.IsRegular() == false})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// FileContentAt returns path's content at commit sha. Paths containing
// ".." are rejected (spec §4.7, §8).
func (a *Archive) FileContentAt(sha, filePath string) (string, bool, error) {
	if strings.Contains(filePath, "..") {
		return "", false, core.InvalidInput("path", "path %q contains '..'", filePath)
	}
	hash, err := a.resolveHash(sha)
	if err != nil {
		return "", false, err
	}
	content, ok, err := a.ReadFileAt(hash, filePath)
	if err != nil || !ok {
		return "", ok, err
	}
	// Best-effort lossy decode for non-UTF-8 content (spec §4.7).
	return string(content), true, nil
}

// FileHistory returns each commit that added, modified, or deleted
// filePath, newest first, capped at limit. Commits that merely inherited
// the file unchanged are skipped.
func (a *Archive) FileHistory(filePath string, limit int) ([]CommitSummary, error) {
	head, err := a.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, core.GitError(err, "resolve HEAD")
	}

	iter, err := a.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &filePath})
	if err != nil {
		return nil, core.GitError(err, "walk file history for %s", filePath)
	}
	defer iter.Close()

	var out []CommitSummary
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return storerStop
		}
		out = append(out, CommitSummary{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
			Message: strings.TrimSpace(c.Message),
		})
		return nil
	})
	if err != nil && err != storerStop {
		return nil, core.GitError(err, "iterate file history")
	}
	return out, nil
}

// ActivityTimeline summarizes commit activity in [since, until]: counts by
// day, by author, and the top-10 most-changed files. File-change
// enumeration stops after activityTimelineCommitCap commits to bound cost
// (spec §4.7).
type ActivityTimeline struct {
	ByDay     map[string]int
	ByAuthor  map[string]int
	TopFiles  []FileActivity
	Truncated bool
}

// FileActivity is one entry of ActivityTimeline.TopFiles.
type FileActivity struct {
	Path    string
	Changes int
}

// ActivityTimeline returns commit activity in [since, until]. When
// EnableTimelineCache has been called, results are memoized per window and
// invalidated on the archive's next commit; otherwise it walks the log on
// every call.
func (a *Archive) ActivityTimeline(since, until time.Time) (*ActivityTimeline, error) {
	if a.timelineCache != nil {
		return a.timelineCache.Get(since, until)
	}
	return a.computeActivityTimeline(since, until)
}

// computeActivityTimeline walks commits in [since, until] and aggregates
// activity. Inputs are assumed sorted by time (commit log is already
// newest-first), so scanning stops as soon as a commit predates since
// (spec §8).
func (a *Archive) computeActivityTimeline(since, until time.Time) (*ActivityTimeline, error) {
	head, err := a.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return &ActivityTimeline{ByDay: map[string]int{}, ByAuthor: map[string]int{}}, nil
		}
		return nil, core.GitError(err, "resolve HEAD")
	}

	iter, err := a.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, core.GitError(err, "walk commit log")
	}
	defer iter.Close()

	tl := &ActivityTimeline{ByDay: map[string]int{}, ByAuthor: map[string]int{}}
	fileCounts := map[string]int{}
	scanned := 0

	err = iter.ForEach(func(c *object.Commit) error {
		if c.Author.When.Before(since) {
			return storerStop
		}
		if !until.IsZero() && c.Author.When.After(until) {
			return nil
		}

		day := c.Author.When.UTC().Format("2006-01-02")
		tl.ByDay[day]++
		tl.ByAuthor[c.Author.Name]++

		if scanned >= activityTimelineCommitCap {
			tl.Truncated = true
			return nil
		}
		scanned++

		var parentTree *object.Tree
		if c.NumParents() > 0 {
			parent, err := c.Parent(0)
			if err == nil {
				parentTree, _ = parent.Tree()
			}
		}
		tree, err := c.Tree()
		if err != nil {
			return nil
		}
		changes, err := diffTrees(parentTree, tree)
		if err != nil {
			return nil
		}
		for _, ch := range changes {
			fileCounts[ch.path]++
		}
		return nil
	})
	if err != nil && err != storerStop {
		return nil, core.GitError(err, "iterate commit log")
	}

	for p, n := range fileCounts {
		tl.TopFiles = append(tl.TopFiles, FileActivity{Path: p, Changes: n})
	}
	sort.Slice(tl.TopFiles, func(i, j int) bool {
		if tl.TopFiles[i].Changes != tl.TopFiles[j].Changes {
			return tl.TopFiles[i].Changes > tl.TopFiles[j].Changes
		}
		return tl.TopFiles[i].Path < tl.TopFiles[j].Path
	})
	if len(tl.TopFiles) > 10 {
		tl.TopFiles = tl.TopFiles[:10]
	}
	return tl, nil
}

func (a *Archive) resolveHash(sha string) (plumbing.Hash, error) {
	if sha == "" {
		return plumbing.ZeroHash, core.InvalidInput("sha", "empty commit SHA")
	}
	hash := plumbing.NewHash(sha)
	if hash.IsZero() && sha != strings.Repeat("0", 40) {
		return plumbing.ZeroHash, core.InvalidInput("sha", "invalid commit SHA %q", sha)
	}
	return hash, nil
}
