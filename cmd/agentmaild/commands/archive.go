package commands

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmail/coordinator/internal/archive"
)

var (
	archiveListAuthor    string
	archiveListLimit     int
	archiveTimelineSince string
	archiveTimelineUntil string
	archiveTimelineHours int
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the git-backed message archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List commits in the archive, newest first",
	Args:  cobra.NoArgs,
	RunE:  runArchiveList,
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore <sha> <path> <dest>",
	Short: "Write a file's content at a historical commit to a local destination path",
	Args:  cobra.ExactArgs(3),
	RunE:  runArchiveRestore,
}

var archiveTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Summarize commit activity by day, author, and hot files over a window",
	Args:  cobra.NoArgs,
	RunE:  runArchiveTimeline,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)
	archiveCmd.AddCommand(archiveTimelineCmd)

	archiveListCmd.Flags().StringVar(&archiveListAuthor, "author", "", "filter by author substring")
	archiveListCmd.Flags().IntVar(&archiveListLimit, "limit", 50, "maximum commits to show")

	archiveTimelineCmd.Flags().IntVar(&archiveTimelineHours, "hours", 24, "lookback window in hours, used when --since is omitted")
	archiveTimelineCmd.Flags().StringVar(&archiveTimelineSince, "since", "", "RFC3339 window start (overrides --hours)")
	archiveTimelineCmd.Flags().StringVar(&archiveTimelineUntil, "until", "", "RFC3339 window end (default now)")
}

// timelineCacheTTL/timelineCacheWindows bound the ActivityTimeline memoization
// this command enables: a status dashboard polling "archive timeline" in a
// loop recomputes the walk at most once per TTL per distinct window.
const (
	timelineCacheTTL     = 30 * time.Second
	timelineCacheWindows = 16
)

func openArchiveForRead() (*archive.Archive, func(), error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)
	arc, err := archive.Open(cfg.ArchiveRoot, "agentmaild", "agentmaild@localhost", logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	arc.EnableTimelineCache(timelineCacheTTL, timelineCacheWindows)
	return arc, func() { arc.Close() }, nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	arc, cleanup, err := openArchiveForRead()
	if err != nil {
		return err
	}
	defer cleanup()

	commits, err := arc.ListCommits(archive.CommitFilter{AuthorSubstring: archiveListAuthor}, archiveListLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range commits {
		fmt.Fprintf(out, "%s  %s  %s  %s\n", c.Hash[:12], c.When.Format(time.RFC3339), c.Author, c.Message)
	}
	return nil
}

func runArchiveRestore(cmd *cobra.Command, args []string) error {
	arc, cleanup, err := openArchiveForRead()
	if err != nil {
		return err
	}
	defer cleanup()

	sha, path, dest := args[0], args[1], args[2]
	content, ok, err := arc.FileContentAt(sha, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s does not exist at commit %s", path, sha)
	}

	if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "restored %s@%s to %s\n", path, sha, dest)
	return nil
}

func runArchiveTimeline(cmd *cobra.Command, args []string) error {
	arc, cleanup, err := openArchiveForRead()
	if err != nil {
		return err
	}
	defer cleanup()

	until := time.Now().UTC()
	if archiveTimelineUntil != "" {
		until, err = time.Parse(time.RFC3339, archiveTimelineUntil)
		if err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}
	}
	since := until.Add(-time.Duration(archiveTimelineHours) * time.Hour)
	if archiveTimelineSince != "" {
		since, err = time.Parse(time.RFC3339, archiveTimelineSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	tl, err := arc.ActivityTimeline(since, until)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commits by day:\n")
	days := make([]string, 0, len(tl.ByDay))
	for d := range tl.ByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	for _, d := range days {
		fmt.Fprintf(out, "  %s  %d\n", d, tl.ByDay[d])
	}

	fmt.Fprintf(out, "commits by author:\n")
	authors := make([]string, 0, len(tl.ByAuthor))
	for a := range tl.ByAuthor {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	for _, a := range authors {
		fmt.Fprintf(out, "  %s  %d\n", a, tl.ByAuthor[a])
	}

	fmt.Fprintf(out, "top files:\n")
	for _, f := range tl.TopFiles {
		fmt.Fprintf(out, "  %s  %d\n", f.Path, f.Changes)
	}
	if tl.Truncated {
		fmt.Fprintf(out, "(truncated: file-change totals stop short of the full window)\n")
	}
	return nil
}
