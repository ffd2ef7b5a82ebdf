package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coursevault/internal/browser"
	"coursevault/internal/downloader"
	"coursevault/pkg/archiver"
	"coursevault/pkg/checkpoint"
	"coursevault/pkg/logger"
	"coursevault/pkg/media"
	"coursevault/pkg/ratelimit"
	"coursevault/pkg/storage"
)

var (
	downloadOutput     string
	downloadCheckpoint string
	downloadQuality    string
	downloadOverwrite  bool
	downloadHeadless   bool
	downloadNoBrowser  bool
)

// downloadCmd archives the content a catalog file describes
var downloadCmd = &cobra.Command{
	Use:   "download <catalog-file> [path-or-course ...]",
	Short: "Archive learning paths and courses from a catalog",
	Long: `Download every learning path and course listed in a catalog file, or
only the entries named by id or URL.

The catalog is a JSON document a site adapter exports: learning paths
with their courses, chapters and units, including each unit's manifest
URLs. Progress is checkpointed continuously; re-running the same command
resumes interrupted work and skips everything already archived.`,
	Example: `  # Archive everything in the catalog
  coursevault download catalog.json

  # Archive one learning path by id
  coursevault download catalog.json backend-path

  # Re-download even when output files exist
  coursevault download catalog.json --overwrite`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output directory for the archive")
	downloadCmd.Flags().StringVar(&downloadCheckpoint, "checkpoint", "", "checkpoint ledger file")
	downloadCmd.Flags().StringVar(&downloadQuality, "quality", "", "preferred video quality (best, worst, or a height like 720)")
	downloadCmd.Flags().BoolVar(&downloadOverwrite, "overwrite", false, "overwrite existing output files")
	downloadCmd.Flags().BoolVar(&downloadHeadless, "headless", true, "run the capture browser headless")
	downloadCmd.Flags().BoolVar(&downloadNoBrowser, "no-browser", false, "disable the browser capture fallback")
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if downloadOutput != "" {
		flags["output"] = downloadOutput
	}
	if downloadCheckpoint != "" {
		flags["checkpoint"] = downloadCheckpoint
	}
	if downloadQuality != "" {
		flags["quality"] = downloadQuality
	}
	if downloadOverwrite {
		flags["overwrite"] = true
	}
	if !downloadHeadless {
		flags["headless"] = false
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("Coursevault starting")

	collector, err := archiver.NewCatalogCollector(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := checkpoint.NewStore(cfg.Output.CheckpointPath, log)
	mgr, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return err
	}

	fetcher := downloader.New(cfg, log)
	muxer := media.NewMuxer(cfg.Download.FFmpegPath, cfg.Site.UserAgent, cfg.Site.BaseURL, log)

	// The browser session is the capture fallback for origins that block
	// direct downloads. Failing to start it degrades the session instead
	// of aborting it.
	var page media.Page
	var capturer *media.Capturer
	if !downloadNoBrowser {
		session, err := browser.NewSession(ctx, cfg, log)
		if err != nil {
			log.WithError(err).Warn("Browser unavailable, capture fallback disabled")
		} else {
			defer session.Close()
			page = session.NewPage()
			capturer = media.NewCapturer(cfg.Capture, log)
		}
	}

	pipeline := media.NewPipeline(fetcher, muxer, capturer, page, cfg, log)
	pacer := ratelimit.NewPacer(cfg.RateLimit.UnitDelay)
	arch := archiver.New(store, mgr, pipeline, fetcher, pacer, cfg, log)

	if err := archiveTargets(ctx, arch, collector, args[1:]); err != nil {
		return err
	}

	stats := store.GetStatistics()
	fmt.Printf("\nDone: %d/%d courses, %d/%d units archived",
		stats.CompletedCourses, stats.TotalCourses,
		stats.CompletedUnits, stats.TotalUnits)
	if stats.FailedUnits > 0 || stats.FailedCourses > 0 {
		fmt.Printf(" (%d courses, %d units failed; run 'coursevault retry-failed')",
			stats.FailedCourses, stats.FailedUnits)
	}
	fmt.Println()
	return nil
}

// archiveTargets runs the session over the named refs, or the whole
// catalog when none are given.
func archiveTargets(ctx context.Context, arch *archiver.Archiver, collector *archiver.CatalogCollector, refs []string) error {
	if len(refs) == 0 {
		catalog := collector.Catalog()
		for i := range catalog.LearningPaths {
			if err := arch.ArchiveLearningPath(ctx, &catalog.LearningPaths[i]); err != nil {
				return err
			}
		}
		for i := range catalog.Courses {
			if err := arch.ArchiveCourse(ctx, &catalog.Courses[i], nil); err != nil {
				if ctx.Err() != nil {
					return err
				}
				// Course failures are recorded; siblings keep going
				continue
			}
		}
		return nil
	}

	for _, ref := range refs {
		if lp, err := collector.FetchLearningPath(ctx, ref); err == nil {
			if err := arch.ArchiveLearningPath(ctx, lp); err != nil {
				return err
			}
			continue
		}
		course, err := collector.FetchCourse(ctx, ref)
		if err != nil {
			return fmt.Errorf("no learning path or course matches %q in the catalog", ref)
		}
		if err := arch.ArchiveCourse(ctx, course, nil); err != nil {
			if ctx.Err() != nil {
				return err
			}
		}
	}
	return nil
}
