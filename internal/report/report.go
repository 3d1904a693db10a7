package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/world-shiny-star/pngfier/internal/engine"
	"github.com/world-shiny-star/pngfier/internal/entities"
	"github.com/world-shiny-star/pngfier/internal/utils"
)

// Report is the full outcome of a dedupe run, serializable as JSON and
// renderable as the per-run text artifact.
type Report struct {
	Metadata Metadata                 `json:"metadata"`
	Summary  Summary                  `json:"summary"`
	Sets     []*entities.DuplicateSet `json:"sets"`
	Removal  *RemovalSummary          `json:"removal,omitempty"`
}

type Metadata struct {
	ScannedPath string    `json:"scanned_path"`
	Timestamp   time.Time `json:"timestamp"`
	Duration    string    `json:"duration_human"`
}

type Summary struct {
	TotalFilesScanned int64  `json:"total_files_scanned"`
	DuplicateSets     int64  `json:"duplicate_sets"`
	TotalDuplicates   int64  `json:"total_duplicates"`
	SkippedSize       int64  `json:"skipped_by_size"`
	AccessErrors      int64  `json:"access_errors"`
	HashErrors        int64  `json:"hash_errors"`
	WastedBytes       int64  `json:"wasted_bytes"`
	WastedHuman       string `json:"wasted_bytes_human"`
}

// RemovalSummary records what the remover actually did.
type RemovalSummary struct {
	Deleted    int64  `json:"deleted"`
	Failed     int64  `json:"failed"`
	BytesFreed int64  `json:"bytes_freed"`
	BackupDir  string `json:"backup_dir,omitempty"`
}

// Build assembles a report from run statistics.
func Build(stats *engine.Stats, scannedPath string) Report {
	return Report{
		Metadata: Metadata{
			ScannedPath: scannedPath,
			Timestamp:   time.Now(),
			Duration:    stats.Duration.String(),
		},
		Summary: Summary{
			TotalFilesScanned: stats.TotalFilesScanned,
			DuplicateSets:     int64(len(stats.Sets)),
			TotalDuplicates:   stats.DuplicateCount,
			SkippedSize:       stats.SkippedSize,
			AccessErrors:      stats.AccessErrors,
			HashErrors:        stats.HashErrors,
			WastedBytes:       stats.WastedBytes,
			WastedHuman:       utils.ByteCountDecimal(stats.WastedBytes),
		},
		Sets: stats.Sets,
	}
}

// Filename returns the timestamped name for a report written at ts.
func Filename(ts time.Time) string {
	return fmt.Sprintf("duplicate-report-%s.txt", ts.Format("20060102-150405"))
}

// WriteText writes the plain-text report into dir and returns its path.
func WriteText(fsys billy.Filesystem, dir string, r Report) (string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := fsys.Join(dir, Filename(r.Metadata.Timestamp))
	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	render(w, r)
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func render(w io.Writer, r Report) {
	fmt.Fprintf(w, "Duplicate report for %s\n", r.Metadata.ScannedPath)
	fmt.Fprintf(w, "Generated: %s (scan took %s)\n\n", r.Metadata.Timestamp.Format(time.RFC3339), r.Metadata.Duration)

	for _, set := range r.Sets {
		fmt.Fprintf(w, "== Set %016x (%s each)\n", set.Hash(), utils.ByteCountDecimal(set.Original.Size))
		fmt.Fprintf(w, "   original:  %s\n", set.Original.Path)
		for _, d := range set.Duplicates {
			fmt.Fprintf(w, "   duplicate: %s\n", d.Path)
		}
		for _, hl := range set.Hardlinks {
			fmt.Fprintf(w, "   hardlink:  %s\n", hl)
		}
		fmt.Fprintf(w, "   wasted:    %s\n\n", utils.ByteCountDecimal(set.Wasted))
	}

	fmt.Fprintf(w, "Files scanned:  %d\n", r.Summary.TotalFilesScanned)
	fmt.Fprintf(w, "Duplicate sets: %d\n", r.Summary.DuplicateSets)
	fmt.Fprintf(w, "Duplicates:     %d\n", r.Summary.TotalDuplicates)
	fmt.Fprintf(w, "Wasted space:   %s\n", r.Summary.WastedHuman)
	if r.Summary.AccessErrors > 0 || r.Summary.HashErrors > 0 {
		fmt.Fprintf(w, "Skipped:        %d unreadable, %d hash failures\n",
			r.Summary.AccessErrors, r.Summary.HashErrors)
	}
	if r.Removal != nil {
		fmt.Fprintf(w, "\nDeleted:        %d (%s freed)\n",
			r.Removal.Deleted, utils.ByteCountDecimal(r.Removal.BytesFreed))
		if r.Removal.Failed > 0 {
			fmt.Fprintf(w, "Failed:         %d\n", r.Removal.Failed)
		}
		if r.Removal.BackupDir != "" {
			fmt.Fprintf(w, "Backup dir:     %s\n", r.Removal.BackupDir)
		}
	}
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
