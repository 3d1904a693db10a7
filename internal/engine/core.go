package engine

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/entities"
	"github.com/world-shiny-star/pngfier/internal/hasher"
	"github.com/world-shiny-star/pngfier/internal/scanner"
)

// Options configures a dedupe run.
type Options struct {
	MinSize   int64
	MaxSize   int64
	Recursive bool
	Excludes  []string
	Quiet     bool // suppress phase progress on stdout
}

// Stats is the outcome of one run.
type Stats struct {
	TotalFilesScanned int64
	SkippedSize       int64
	AccessErrors      int64
	HashErrors        int64
	Sets              []*entities.DuplicateSet
	DuplicateCount    int64
	WastedBytes       int64
	Duration          time.Duration
}

// Runner executes the scan → pre-hash → full-hash → group pipeline.
type Runner struct {
	opts Options
}

// New creates a runner.
func New(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run scans rootDir and returns the duplicate sets found there.
func (r *Runner) Run(rootDir string) (*Stats, error) {
	start := time.Now()

	// Phase 1: enumerate and bucket by size. Unique sizes cannot have
	// duplicates, so they drop out here without a single read.
	r.progress("Phase 1: scanning %s\n", rootDir)
	sc := scanner.New(scanner.Config{
		MinSize:   r.opts.MinSize,
		MaxSize:   r.opts.MaxSize,
		Recursive: r.opts.Recursive,
		Excludes:  r.opts.Excludes,
	})

	scanRes, err := sc.Scan(rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	var candidates []*entities.FileRecord
	for _, group := range scanRes.FilesBySize {
		if group.Count > 1 {
			candidates = append(candidates, group.Files...)
		}
	}
	r.progress("  %d files, %d size-bucket candidates\n", scanRes.TotalFiles, len(candidates))

	stats := &Stats{
		TotalFilesScanned: scanRes.TotalFiles,
		SkippedSize:       scanRes.SkippedSize,
		AccessErrors:      scanRes.AccessErrors,
	}

	// Phase 2: first-block hash to prune candidates cheaply.
	r.progress("Phase 2: first-block check\n")
	survivors := r.preHash(candidates, stats)
	r.progress("  %d candidates after first-block check\n", len(survivors))

	// Phase 3: full content hash.
	r.progress("Phase 3: full hash\n")
	byHash := r.fullHash(survivors, stats)

	// Phase 4: group into duplicate sets.
	stats.Sets = BuildSets(byHash)
	for _, set := range stats.Sets {
		stats.DuplicateCount += int64(len(set.Duplicates))
		stats.WastedBytes += set.Wasted
	}
	stats.Duration = time.Since(start)

	return stats, nil
}

func (r *Runner) progress(format string, args ...any) {
	if !r.opts.Quiet {
		fmt.Printf(format, args...)
	}
}

// preHash hashes each candidate's first block in parallel and keeps only
// records whose first-block hash collides with another candidate.
func (r *Runner) preHash(records []*entities.FileRecord, stats *Stats) []*entities.FileRecord {
	type result struct {
		rec  *entities.FileRecord
		hash uint64
		err  error
	}

	jobs := make(chan *entities.FileRecord, len(records))
	results := make(chan result, len(records))

	var wg sync.WaitGroup
	for i := 0; i < runtime.NumCPU(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				h, err := hasher.HashFirstBlock(rec.Path)
				results <- result{rec, h, err}
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	groups := make(map[uint64][]*entities.FileRecord)
	for res := range results {
		if res.err != nil {
			logrus.WithError(res.err).WithField("path", res.rec.Path).Warn("first-block hash failed, excluding file")
			stats.HashErrors++
			continue
		}
		groups[res.hash] = append(groups[res.hash], res.rec)
	}

	var survivors []*entities.FileRecord
	for _, recs := range groups {
		if len(recs) > 1 {
			survivors = append(survivors, recs...)
		}
	}
	return survivors
}

// fullHash computes the full content hash for each record in parallel and
// buckets the records by it. Failed files are excluded, not fatal.
func (r *Runner) fullHash(records []*entities.FileRecord, stats *Stats) map[uint64][]*entities.FileRecord {
	type result struct {
		rec  *entities.FileRecord
		hash uint64
		err  error
	}

	jobs := make(chan *entities.FileRecord, len(records))
	results := make(chan result, len(records))

	var wg sync.WaitGroup
	for i := 0; i < runtime.NumCPU(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				h, _, err := hasher.HashFile(rec.Path)
				results <- result{rec, h, err}
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	byHash := make(map[uint64][]*entities.FileRecord)
	for res := range results {
		if res.err != nil {
			logrus.WithError(res.err).WithField("path", res.rec.Path).Warn("hash failed, excluding file")
			stats.HashErrors++
			continue
		}
		res.rec.Hash = res.hash
		byHash[res.hash] = append(byHash[res.hash], res.rec)
	}
	return byHash
}
