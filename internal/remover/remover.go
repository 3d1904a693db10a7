package remover

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/entities"
)

// Options configures a removal pass.
type Options struct {
	// ScanRoot is the directory the duplicates were found under; backup
	// copies preserve paths relative to it.
	ScanRoot string
	// Backup copies each duplicate into the backup directory before deleting.
	Backup bool
	// BackupRoot is where the timestamped backup directory is created.
	// Empty means ScanRoot's parent.
	BackupRoot string
	// Now lets tests pin the backup directory timestamp.
	Now func() time.Time
}

// Result counts what a removal pass did. Failures are counted, never fatal.
type Result struct {
	Deleted    int64
	Failed     int64
	BytesFreed int64
	BackupDir  string
}

// Run deletes every duplicate in sets, backing each one up first when
// requested. Originals and hardlinks are never touched. A failure on one
// file is logged and counted; the pass continues.
func Run(fsys billy.Filesystem, sets []*entities.DuplicateSet, opts Options) *Result {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	res := &Result{}
	if opts.Backup {
		root := opts.BackupRoot
		if root == "" {
			root = filepath.Dir(opts.ScanRoot)
		}
		res.BackupDir = fsys.Join(root, fmt.Sprintf("pngfier-backup-%s", opts.Now().Format("20060102-150405")))
	}

	for _, set := range sets {
		for _, dup := range set.Duplicates {
			if opts.Backup {
				if err := backup(fsys, dup.Path, opts.ScanRoot, res.BackupDir); err != nil {
					logrus.WithError(err).WithField("path", dup.Path).Error("backup failed, file kept")
					res.Failed++
					continue
				}
			}
			if err := fsys.Remove(dup.Path); err != nil {
				logrus.WithError(err).WithField("path", dup.Path).Error("delete failed")
				res.Failed++
				continue
			}
			res.Deleted++
			res.BytesFreed += dup.Size
		}
	}

	return res
}

// backup copies src into backupDir, preserving its path relative to
// scanRoot. Files from outside the scan root fall back to their base name.
func backup(fsys billy.Filesystem, src, scanRoot, backupDir string) error {
	rel, err := filepath.Rel(scanRoot, src)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(src)
	}
	dst := fsys.Join(backupDir, rel)

	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup copy: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("flush backup copy: %w", err)
	}
	return nil
}
