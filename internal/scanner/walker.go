package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/entities"
)

// Config defines the rules for a scan.
type Config struct {
	MinSize   int64    // smallest file size considered
	MaxSize   int64    // largest file size considered; 0 = unlimited
	Recursive bool     // descend into subdirectories
	Excludes  []string // directory/file names to ignore
}

// Result is the outcome of one scan: files bucketed by size plus counters
// for everything that was passed over.
type Result struct {
	FilesBySize  map[int64]*entities.FileGroup
	TotalFiles   int64
	SkippedSize  int64 // outside the min/max window
	AccessErrors int64 // unreadable entries, logged and skipped
}

// FileScanner walks a directory tree and collects candidate records.
type FileScanner struct {
	cfg        Config
	excludeMap map[string]struct{}
}

// New creates a scanner with the given configuration.
func New(cfg Config) *FileScanner {
	exMap := make(map[string]struct{}, len(cfg.Excludes))
	for _, e := range cfg.Excludes {
		exMap[e] = struct{}{}
	}

	return &FileScanner{
		cfg:        cfg,
		excludeMap: exMap,
	}
}

// Scan walks rootDir and groups regular files by size. Per-entry access
// errors are counted and skipped; only a failure to read the root itself
// aborts the scan.
func (s *FileScanner) Scan(rootDir string) (*Result, error) {
	res := &Result{
		FilesBySize: make(map[int64]*entities.FileGroup),
	}

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == rootDir {
				return fmt.Errorf("read scan root %s: %w", rootDir, err)
			}
			logrus.WithError(err).WithField("path", path).Warn("skipping unreadable entry")
			res.AccessErrors++
			return nil
		}

		if d.IsDir() {
			if path == rootDir {
				return nil
			}
			if _, ok := s.excludeMap[d.Name()]; ok {
				return filepath.SkipDir
			}
			if !s.cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := s.excludeMap[d.Name()]; ok {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("stat failed, skipping")
			res.AccessErrors++
			return nil
		}

		res.TotalFiles++

		size := info.Size()
		if size < s.cfg.MinSize || (s.cfg.MaxSize > 0 && size > s.cfg.MaxSize) {
			res.SkippedSize++
			return nil
		}

		devID, inode := sysInfo(info)
		rec := &entities.FileRecord{
			Path:      path,
			Name:      d.Name(),
			Size:      size,
			ModTime:   info.ModTime(),
			DeviceID:  devID,
			Inode:     inode,
			ScanIndex: res.TotalFiles - 1,
			// Hash is filled in by the hashing phase.
		}

		if _, exists := res.FilesBySize[size]; !exists {
			res.FilesBySize[size] = &entities.FileGroup{}
		}
		res.FilesBySize[size].Add(rec)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// sysInfo extracts device and inode numbers when the platform exposes them.
func sysInfo(info fs.FileInfo) (uint64, uint64) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(stat.Dev), uint64(stat.Ino)
}
