package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/config"
	"github.com/world-shiny-star/pngfier/internal/engine"
	"github.com/world-shiny-star/pngfier/internal/extract"
	"github.com/world-shiny-star/pngfier/internal/remover"
)

// Stats accumulates what the monitor has done since it started.
type Stats struct {
	FilesProcessed    int64
	ImagesExtracted   int64
	DuplicatesRemoved int64
	SpaceSaved        int64
}

// Monitor watches one directory (non-recursive) for new web files and runs
// the extract → dedupe pipeline over each.
type Monitor struct {
	dir    string
	cfg    *config.Config
	fsys   billy.Filesystem
	settle time.Duration

	mu        sync.Mutex
	processed map[string]bool
	stats     Stats
}

// New creates a monitor for dir. Mutations (extracted images, backups,
// deletions) go through fsys.
func New(dir string, cfg *config.Config, fsys billy.Filesystem) *Monitor {
	return &Monitor{
		dir:       dir,
		cfg:       cfg,
		fsys:      fsys,
		settle:    500 * time.Millisecond,
		processed: make(map[string]bool),
	}
}

// SetSettleDelay overrides how long a new file must keep a stable size
// before it is considered fully written.
func (m *Monitor) SetSettleDelay(d time.Duration) {
	m.settle = d
}

// Stats returns a copy of the accumulated counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Run watches until ctx is cancelled. Each created file with a watched
// extension is processed once; processing failures are logged, never fatal.
func (m *Monitor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	logrus.WithField("dir", m.dir).Info("monitoring started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("monitoring stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) {
				continue
			}
			if !m.cfg.WatchesExt(strings.ToLower(filepath.Ext(event.Name))) {
				continue
			}
			if m.processed[event.Name] {
				continue
			}
			m.processed[event.Name] = true
			logrus.WithField("file", event.Name).Info("new file detected")
			m.HandleFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("watcher error")
		}
	}
}

// ProcessExisting runs the extract → dedupe pipeline over the matching
// files already sitting in the directory, for one-shot cleanups and for
// catching up before watching. Files handled here are not processed again
// by Run.
func (m *Monitor) ProcessExisting() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.dir, err)
	}

	var matched int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !m.cfg.WatchesExt(strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		if m.processed[path] {
			continue
		}
		m.processed[path] = true
		matched++
		m.HandleFile(path)
	}
	logrus.WithFields(logrus.Fields{"dir": m.dir, "files": matched}).Info("existing files processed")
	return nil
}

// HandleFile runs the extract → dedupe pipeline over one file: extract its
// embedded images, then delete duplicate images from the output directory,
// backing them up first when configured.
func (m *Monitor) HandleFile(path string) {
	m.waitSettled(path)

	res, err := extract.FromFile(m.fsys, path, extract.Options{})
	if err != nil {
		logrus.WithError(err).WithField("file", path).Error("extract failed")
		return
	}
	m.mu.Lock()
	m.stats.FilesProcessed++
	m.stats.ImagesExtracted += int64(len(res.Written))
	m.mu.Unlock()
	if len(res.Written) == 0 {
		return
	}

	stats, err := engine.New(engine.Options{
		Recursive: true,
		MinSize:   1,
		Excludes:  m.cfg.Exclude,
		Quiet:     true,
	}).Run(res.OutputDir)
	if err != nil {
		logrus.WithError(err).WithField("dir", res.OutputDir).Error("dedupe failed")
		return
	}

	removal := remover.Run(m.fsys, stats.Sets, remover.Options{
		ScanRoot:   res.OutputDir,
		Backup:     m.cfg.Backup,
		BackupRoot: m.dir,
	})
	m.mu.Lock()
	m.stats.DuplicatesRemoved += removal.Deleted
	m.stats.SpaceSaved += removal.BytesFreed
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"file":       filepath.Base(path),
		"images":     len(res.Written),
		"duplicates": removal.Deleted,
	}).Info("processed")
}

// waitSettled polls the file size until it stops changing, so half-written
// downloads are not processed mid-flight.
func (m *Monitor) waitSettled(path string) {
	var lastSize int64 = -1
	deadline := time.Now().Add(10 * m.settle)
	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.Size() == lastSize {
			return
		}
		lastSize = info.Size()
		time.Sleep(m.settle)
	}
}
