package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/world-shiny-star/pngfier/internal/config"
	"github.com/world-shiny-star/pngfier/internal/engine"
	"github.com/world-shiny-star/pngfier/internal/extract"
	"github.com/world-shiny-star/pngfier/internal/remover"
	"github.com/world-shiny-star/pngfier/internal/report"
	"github.com/world-shiny-star/pngfier/internal/utils"
	"github.com/world-shiny-star/pngfier/internal/watch"
)

// confirmPhrase must be typed verbatim before anything is deleted.
const confirmPhrase = "DELETE"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pngfier dedupe [options] <dir>\n")
	fmt.Fprintf(os.Stderr, "       pngfier extract [options] <file>...\n")
	fmt.Fprintf(os.Stderr, "       pngfier watch [options] <dir>\n")
	fmt.Fprintf(os.Stderr, "       pngfier cleanup [options] <dir>\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "dedupe":
		err = runDedupe(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "cleanup":
		err = runCleanup(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func runDedupe(args []string) error {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	configPath := fs.String("config", "pngfier.yaml", "Config file path")
	minSize := fs.Int64("min-size", -1, "Minimum file size in bytes (overrides config)")
	maxSize := fs.Int64("max-size", -1, "Maximum file size in bytes, 0 = unlimited (overrides config)")
	noRecurse := fs.Bool("no-recurse", false, "Do not descend into subdirectories")
	exclude := fs.String("exclude", "", "Extra comma-separated names to exclude")
	doDelete := fs.Bool("delete", false, "Delete duplicate files after confirmation")
	backup := fs.Bool("backup", true, "Copy duplicates to a backup directory before deleting")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt (for scripts)")
	jsonOut := fs.Bool("json", false, "Print the report as JSON to stdout instead")
	reportDir := fs.String("report-dir", ".", "Directory for the per-run report file")
	verbose := fs.Bool("verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pngfier dedupe [options] <dir>\n\n")
		fmt.Fprintf(os.Stderr, "Find duplicate files under <dir>; the oldest copy in each set survives.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	setupLogging(*verbose)

	root, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve scan dir: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *minSize >= 0 {
		cfg.MinSize = *minSize
	}
	if *maxSize >= 0 {
		cfg.MaxSize = *maxSize
	}
	cfg.Backup = *backup

	excludes := cfg.Exclude
	if *exclude != "" {
		for _, name := range strings.Split(*exclude, ",") {
			if name = strings.TrimSpace(name); name != "" {
				excludes = append(excludes, name)
			}
		}
	}

	stats, err := engine.New(engine.Options{
		MinSize:   cfg.MinSize,
		MaxSize:   cfg.MaxSize,
		Recursive: !*noRecurse,
		Excludes:  excludes,
		Quiet:     *jsonOut,
	}).Run(root)
	if err != nil {
		return err
	}

	rep := report.Build(stats, root)

	if *jsonOut {
		return report.WriteJSON(os.Stdout, rep)
	}

	printSets(rep)

	if *doDelete && len(rep.Sets) > 0 {
		if *yes || confirmDeletion(os.Stdin) {
			res := remover.Run(osfs.New("/"), stats.Sets, remover.Options{
				ScanRoot: root,
				Backup:   cfg.Backup,
			})
			rep.Removal = &report.RemovalSummary{
				Deleted:    res.Deleted,
				Failed:     res.Failed,
				BytesFreed: res.BytesFreed,
				BackupDir:  res.BackupDir,
			}
			fmt.Printf("🗑️  Deleted %d duplicates (%s freed)", res.Deleted, utils.ByteCountDecimal(res.BytesFreed))
			if res.Failed > 0 {
				fmt.Printf(", %d failed", res.Failed)
			}
			fmt.Println()
			if res.BackupDir != "" && res.Deleted > 0 {
				fmt.Printf("💾 Backups in %s\n", res.BackupDir)
			}
		} else {
			fmt.Println("Deletion cancelled; nothing was removed.")
		}
	}

	path, err := report.WriteText(osfs.New("/"), mustAbs(*reportDir), rep)
	if err != nil {
		return err
	}
	fmt.Printf("📄 Report written to %s\n", path)

	return nil
}

// printSets renders the duplicate sets and run summary for humans.
func printSets(rep report.Report) {
	if len(rep.Sets) == 0 {
		fmt.Println("✅ No duplicates found.")
		return
	}

	fmt.Printf("\n🔴 %d duplicate set(s):\n", len(rep.Sets))
	for _, set := range rep.Sets {
		fmt.Printf("   📦 %s each | keep: %s\n", utils.ByteCountDecimal(set.Original.Size), set.Original.Path)
		for _, d := range set.Duplicates {
			fmt.Printf("      🗑️  %s\n", d.Path)
		}
		for _, hl := range set.Hardlinks {
			fmt.Printf("      🔗 %s (hardlink, 0 B)\n", hl)
		}
	}
	fmt.Printf("\n🏁 %d files scanned, %d duplicates, %s recoverable\n",
		rep.Summary.TotalFilesScanned, rep.Summary.TotalDuplicates, rep.Summary.WastedHuman)
}

// confirmDeletion asks the user to type the confirmation phrase. Anything
// else cancels the destructive action but not the run.
func confirmDeletion(in *os.File) bool {
	fmt.Printf("⚠️  Type %s to permanently remove the files listed above: ", confirmPhrase)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(scanner.Text()) == confirmPhrase
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outDir := fs.String("out", "", "Output directory (default <input>_images next to each input)")
	minPayload := fs.Int("min-payload", 0, "Minimum bare base64 payload length in characters")
	dataURIOnly := fs.Bool("data-uri-only", false, "Only extract data: URIs, skip bare base64 blocks")
	verbose := fs.Bool("verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pngfier extract [options] <file>...\n\n")
		fmt.Fprintf(os.Stderr, "Extract base64-embedded images from text files to disk.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	setupLogging(*verbose)

	fsys := osfs.New("/")
	var totalImages, totalBytes, totalDup int64
	for _, arg := range fs.Args() {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", arg, err)
		}

		res, err := extract.FromFile(fsys, path, extract.Options{
			OutDir:      *outDir,
			MinPayload:  *minPayload,
			DataURIOnly: *dataURIOnly,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}

		fmt.Printf("🖼️  %s: %d image(s) → %s\n", arg, len(res.Written), res.OutputDir)
		if res.Duplicates > 0 {
			fmt.Printf("   ♻️  %d duplicate payload(s) skipped\n", res.Duplicates)
		}
		if res.Invalid > 0 {
			fmt.Printf("   ⚠️  %d payload(s) failed to decode\n", res.Invalid)
		}
		if res.WriteFailed > 0 {
			fmt.Printf("   ⚠️  %d image(s) could not be written\n", res.WriteFailed)
		}
		totalImages += int64(len(res.Written))
		totalBytes += res.BytesWritten
		totalDup += res.Duplicates
	}

	if fs.NArg() > 1 {
		fmt.Printf("🏁 %d image(s), %s written, %d duplicate payload(s) skipped\n",
			totalImages, utils.ByteCountDecimal(totalBytes), totalDup)
	}
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "pngfier.yaml", "Config file path")
	backup := fs.Bool("backup", true, "Back up duplicates before deleting them")
	scanExisting := fs.Bool("scan-existing", false, "Process matching files already in the directory before watching")
	saveSettings := fs.Bool("save-settings", false, "Persist the effective settings to the config file")
	verbose := fs.Bool("verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pngfier watch [options] <dir>\n\n")
		fmt.Fprintf(os.Stderr, "Monitor <dir> for new web files; extract their images and remove duplicates.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	// Watch mode is long-running; keep per-file activity visible.
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve watch dir: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Backup = *backup
	if *saveSettings {
		if err := cfg.Save(*configPath); err != nil {
			logrus.WithError(err).Warn("could not save settings")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("👀 Watching %s (extensions: %s), Ctrl-C to stop\n", dir, strings.Join(cfg.WatchExtensions, ", "))

	monitor := watch.New(dir, cfg, osfs.New("/"))
	if *scanExisting {
		if err := monitor.ProcessExisting(); err != nil {
			return err
		}
	}
	if err := monitor.Run(ctx); err != nil {
		return err
	}

	printWatchStats(monitor.Stats())
	return nil
}

// runCleanup is the one-shot counterpart of watch: it processes the web
// files already sitting in a folder and exits.
func runCleanup(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "pngfier.yaml", "Config file path")
	backup := fs.Bool("backup", true, "Back up duplicates before deleting them")
	verbose := fs.Bool("verbose", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pngfier cleanup [options] <dir>\n\n")
		fmt.Fprintf(os.Stderr, "Extract images from the web files in <dir> and remove duplicate images.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	setupLogging(*verbose)

	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve cleanup dir: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Backup = *backup

	fmt.Printf("🔧 Cleaning up %s\n", dir)
	monitor := watch.New(dir, cfg, osfs.New("/"))
	if err := monitor.ProcessExisting(); err != nil {
		return err
	}

	printWatchStats(monitor.Stats())
	return nil
}

func printWatchStats(stats watch.Stats) {
	fmt.Printf("\n🏁 Processed %d file(s): %d image(s) extracted, %d duplicate(s) removed, %s saved\n",
		stats.FilesProcessed, stats.ImagesExtracted, stats.DuplicatesRemoved,
		utils.ByteCountDecimal(stats.SpaceSaved))
}

// mustAbs resolves a path, falling back to the input if resolution fails.
func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
