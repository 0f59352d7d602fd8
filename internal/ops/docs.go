package ops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const archiveDirName = "archive"

// Files that describe the docs tree itself stay in place
var pinnedDocs = map[string]bool{
	"readme.md": true,
	"index.md":  true,
}

// ArchivedDoc is one markdown file moved by ArchiveDocs.
type ArchivedDoc struct {
	Name     string
	From     string
	To       string
	Modified time.Time
}

// ArchiveOptions controls ArchiveDocs.
type ArchiveOptions struct {
	Dir       string
	OlderThan time.Duration
	DryRun    bool
	Now       time.Time
}

// ArchiveDocs moves markdown files in opts.Dir not modified within
// opts.OlderThan into Dir/archive/YYYY-MM and records them in INDEX.md.
func ArchiveDocs(opts ArchiveOptions) ([]ArchivedDoc, error) {
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.Dir, err)
	}

	cutoff := opts.Now.Add(-opts.OlderThan)
	target := filepath.Join(opts.Dir, archiveDirName, opts.Now.Format("2006-01"))

	var moved []ArchivedDoc
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			continue
		}
		if pinnedDocs[strings.ToLower(entry.Name())] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return moved, err
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		moved = append(moved, ArchivedDoc{
			Name:     entry.Name(),
			From:     filepath.Join(opts.Dir, entry.Name()),
			To:       filepath.Join(target, entry.Name()),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(moved, func(i, j int) bool { return moved[i].Name < moved[j].Name })
	if opts.DryRun || len(moved) == 0 {
		return moved, nil
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", target, err)
	}
	for i, doc := range moved {
		if _, err := os.Stat(doc.To); err == nil {
			return moved[:i], fmt.Errorf("refusing to overwrite %s", doc.To)
		} else if !errors.Is(err, os.ErrNotExist) {
			return moved[:i], err
		}
		if err := os.Rename(doc.From, doc.To); err != nil {
			return moved[:i], fmt.Errorf("failed to move %s: %w", doc.From, err)
		}
	}

	if err := appendArchiveIndex(filepath.Join(target, "INDEX.md"), opts.Now, moved); err != nil {
		return moved, err
	}
	return moved, nil
}

func appendArchiveIndex(path string, now time.Time, docs []ArchivedDoc) error {
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open archive index: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if fresh {
		fmt.Fprintf(&b, "# Archive %s\n\n", now.Format("2006-01"))
		b.WriteString("| File | Last modified | Archived |\n")
		b.WriteString("|---|---|---|\n")
	}
	for _, doc := range docs {
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s |\n",
			doc.Name, doc.Name, doc.Modified.UTC().Format("2006-01-02"), now.Format("2006-01-02"))
	}
	_, err = f.WriteString(b.String())
	return err
}

// ParseAge accepts Go durations plus day ("90d") and week ("2w") suffixes.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("age is empty")
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit == 0 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid age %q: %w", s, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("age must be positive, got %q", s)
		}
		return d, nil
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return time.Duration(n) * unit, nil
}

// NewDocsCommand creates the docs command group.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Documentation housekeeping",
	}
	cmd.AddCommand(newDocsArchiveCommand(rootOpts))
	return cmd
}

func newDocsArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dir       string
		olderThan string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move stale markdown files into the dated archive",
		Long: `Move markdown files that were not modified within --older-than
into <dir>/archive/YYYY-MM/ and list them in that folder's INDEX.md.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := ParseAge(olderThan)
			if err != nil {
				return err
			}
			moved, err := ArchiveDocs(ArchiveOptions{
				Dir:       dir,
				OlderThan: age,
				DryRun:    dryRun,
				Now:       rootOpts.deps.Now(),
			})
			writeArchiveReport(cmd.OutOrStdout(), moved, dryRun)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "docs", "docs directory")
	cmd.Flags().StringVar(&olderThan, "older-than", "90d", "archive files not modified within this window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the files without moving them")
	return cmd
}

func writeArchiveReport(w io.Writer, moved []ArchivedDoc, dryRun bool) {
	verb := "Archived"
	if dryRun {
		verb = "Would archive"
	}
	if len(moved) == 0 {
		fmt.Fprintln(w, "Nothing to archive.")
		return
	}
	for _, doc := range moved {
		fmt.Fprintf(w, "%s %s -> %s\n", verb, doc.From, doc.To)
	}
	fmt.Fprintf(w, "%s %d file(s).\n", verb, len(moved))
}
