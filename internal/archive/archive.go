// Package archive implements GitArchive and ArchiveBrowser (spec §4.2,
// §4.7): a content-addressed commit log mirroring every coordination-store
// write under a per-project directory tree, plus read-only history access.
//
// A single GitArchive caches one go-git repository handle behind a
// process-wide mutex, continuing the teacher's "one cached handle, guarded
// by a mutex, never duplicated" discipline from internal/cache and
// internal/db — here applied to a git.Repository instead of a sqlite
// connection.
package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/agentmail/coordinator/internal/core"
)

// Archive holds the single cached repository handle rooted at root. All
// commits serialize through mu (in-process) and flock (cross-process,
// guarding against a second binary pointed at the same archive root) —
// spec §4.2's "serialization contract" and §5's "git mutex".
type Archive struct {
	root   string
	author string
	email  string
	log    zerolog.Logger

	mu   sync.Mutex
	flk  *flock.Flock
	repo *git.Repository

	timelineCache *TimelineCache
}

// Open opens (creating if necessary) the git repository at root and
// returns a cached handle. It does not create any per-project directory —
// call EnsureProject for that.
func Open(root string, authorName, authorEmail string, log zerolog.Logger) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, core.IoError(err, "create archive root %s", root)
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		if err != git.ErrRepositoryNotExists {
			return nil, core.GitError(err, "open archive repository at %s", root)
		}
		repo, err = git.PlainInit(root, false)
		if err != nil {
			return nil, core.GitError(err, "initialize archive repository at %s", root)
		}
	}

	return &Archive{
		root:   root,
		author: authorName,
		email:  authorEmail,
		log:    log,
		flk:    flock.New(filepath.Join(root, ".agentmail-archive.lock")),
		repo:   repo,
	}, nil
}

// Root returns the archive's working directory.
func (a *Archive) Root() string { return a.root }

// EnableTimelineCache turns on memoization for ActivityTimeline, keyed by
// the (since, until) window and invalidated on every commit this Archive
// makes. Call once after Open; safe to skip for short-lived CLI paths that
// only read the timeline once.
func (a *Archive) EnableTimelineCache(ttl time.Duration, maxEntries int) {
	a.timelineCache = NewTimelineCache(a, ttl, maxEntries)
}

// Close stops the timeline cache's background cleanup goroutine, if one was
// started via EnableTimelineCache. It does not close the underlying git
// repository handle, which go-git holds no file descriptors for.
func (a *Archive) Close() error {
	if a.timelineCache != nil {
		a.timelineCache.Stop()
	}
	return nil
}

// Repo returns the cached repository handle. Callers that only read
// history (ArchiveBrowser) may use it directly without the mutex; callers
// that write must go through CommitPaths/CommitDeletion.
func (a *Archive) Repo() *git.Repository { return a.repo }

// lock acquires both the in-process mutex and the cross-process flock for
// the duration of a write sequence, per spec §4.2's serialization
// contract ("every caller must hold the git mutex for the entire sequence
// write workdir files -> commit").
func (a *Archive) lock() (func(), error) {
	a.mu.Lock()
	if err := a.flk.Lock(); err != nil {
		a.mu.Unlock()
		return nil, core.GitError(err, "acquire archive lock")
	}
	return func() {
		a.flk.Unlock()
		a.mu.Unlock()
	}, nil
}

// EnsureProject creates projects/<slug>/ and a ".gitattributes" file if
// absent, then commits them with "chore: initialize archive" — spec
// §4.2's idempotent ensure_archive, scoped per project directory rather
// than per repository since one Archive backs every project.
func (a *Archive) EnsureProject(slug string) error {
	unlock, err := a.lock()
	if err != nil {
		return err
	}
	defer unlock()

	dir := filepath.Join(a.root, "projects", slug)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.IoError(err, "create project directory %s", dir)
	}

	attrPath := filepath.Join(dir, ".gitattributes")
	if err := os.WriteFile(attrPath, []byte("*.md text eol=lf\n"), 0o644); err != nil {
		return core.IoError(err, "write .gitattributes")
	}

	rel, err := filepath.Rel(a.root, attrPath)
	if err != nil {
		return core.IoError(err, "compute relative path")
	}
	_, err = a.commitLocked([]string{rel}, "chore: initialize archive")
	return err
}

// CommitPaths stages the given paths (relative to the archive root) and
// records a commit, returning the new commit hash (spec §4.2). It is the
// sole entry point for writes; every caller must already hold no other
// lock on the archive (CommitPaths acquires it itself).
func (a *Archive) CommitPaths(paths []string, message string) (plumbing.Hash, error) {
	unlock, err := a.lock()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer unlock()
	return a.commitLocked(paths, message)
}

// commitLocked assumes the caller already holds a.mu and a.flk.
func (a *Archive) commitLocked(paths []string, message string) (plumbing.Hash, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, core.GitError(err, "open worktree")
	}

	for _, p := range paths {
		if strings.Contains(p, "..") {
			return plumbing.ZeroHash, core.InvalidInput("path", "path %q escapes archive root", p)
		}
		if _, err := wt.Add(p); err != nil {
			return plumbing.ZeroHash, core.GitError(err, "stage %s", p)
		}
	}

	sig := &object.Signature{Name: a.author, Email: a.email, When: time.Now().UTC()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return plumbing.ZeroHash, core.GitError(err, "commit %q", message)
	}

	a.log.Info().Str("commit", hash.String()).Str("message", message).Msg("archive commit")
	if a.timelineCache != nil {
		a.timelineCache.Invalidate()
	}
	return hash, nil
}

// CommitDeletion removes the file/directory subtree at relPath from the
// worktree and records a "chore: delete ..." style commit supplied by the
// caller (spec §4.3 cascade delete, final step).
func (a *Archive) CommitDeletion(relPath string, message string) (plumbing.Hash, error) {
	unlock, err := a.lock()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer unlock()

	if strings.Contains(relPath, "..") {
		return plumbing.ZeroHash, core.InvalidInput("path", "path %q escapes archive root", relPath)
	}

	abs := filepath.Join(a.root, relPath)
	if err := os.RemoveAll(abs); err != nil {
		return plumbing.ZeroHash, core.IoError(err, "remove %s", abs)
	}

	wt, err := a.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, core.GitError(err, "open worktree")
	}
	if _, err := wt.Add(relPath); err != nil && !os.IsNotExist(err) {
		return plumbing.ZeroHash, core.GitError(err, "stage deletion of %s", relPath)
	}

	sig := &object.Signature{Name: a.author, Email: a.email, When: time.Now().UTC()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		return plumbing.ZeroHash, core.GitError(err, "commit deletion %q", message)
	}
	if a.timelineCache != nil {
		a.timelineCache.Invalidate()
	}
	return hash, nil
}

// ReadFileAt returns the content of path as of commit, or (nil, false) if
// the file does not exist at that commit (spec §4.2).
func (a *Archive) ReadFileAt(commit plumbing.Hash, path string) ([]byte, bool, error) {
	if strings.Contains(path, "..") {
		return nil, false, core.InvalidInput("path", "path %q contains '..'", path)
	}

	c, err := a.repo.CommitObject(commit)
	if err != nil {
		return nil, false, core.GitError(err, "load commit %s", commit)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, false, core.GitError(err, "load tree for commit %s", commit)
	}
	f, err := tree.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, false, nil
		}
		return nil, false, core.GitError(err, "load file %s at %s", path, commit)
	}
	r, err := f.Reader()
	if err != nil {
		return nil, false, core.GitError(err, "open reader for %s", path)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, false, core.GitError(err, "read %s", path)
	}
	return buf.Bytes(), true, nil
}

// WriteAndStagePath is a convenience for callers assembling a multi-file
// commit (spec §4.2's "canonical, outbox, and inbox copies are all written
// and all included in one commit"): it writes content to the workdir path
// without committing.
func (a *Archive) WriteAndStagePath(relPath string, content []byte) error {
	if strings.Contains(relPath, "..") {
		return core.InvalidInput("path", "path %q escapes archive root", relPath)
	}
	abs := filepath.Join(a.root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return core.IoError(err, "create directory for %s", relPath)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return core.IoError(err, "write %s", relPath)
	}
	return nil
}

// WithLock runs fn while holding the archive's write lock, letting a
// caller stage several files (via WriteAndStagePath) and then commit them
// atomically via commitLocked-equivalent CommitPaths semantics without a
// second lock acquisition. This is the hook CoordinationStore uses to
// implement its six-step send sequence (spec §4.3).
func (a *Archive) WithLock(fn func(commit func(paths []string, message string) (plumbing.Hash, error)) error) error {
	unlock, err := a.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return fn(a.commitLocked)
}
