package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"coursevault/pkg/checkpoint"
	"coursevault/pkg/logger"
)

var statusErrors int

// statusCmd reports archive progress from the checkpoint ledger
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive progress and recent failures",
	Long: `Summarize the checkpoint ledger: aggregate progress, per-path course
counts, failed courses and units, and the most recent recorded errors.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusErrors, "errors", 5, "number of recent errors to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(cfg.Output.CheckpointPath, logger.GetLogger())
	stats := store.GetStatistics()
	ledger := store.Ledger()

	fmt.Printf("Ledger: %s\n\n", store.Path())
	fmt.Printf("Courses: %d total, %d completed, %d failed\n",
		stats.TotalCourses, stats.CompletedCourses, stats.FailedCourses)
	fmt.Printf("Units:   %d total, %d completed, %d failed\n",
		stats.TotalUnits, stats.CompletedUnits, stats.FailedUnits)

	if len(ledger.LearningPaths) > 0 {
		fmt.Println("\nLearning paths:")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		paths := make([]*checkpoint.LearningPath, 0, len(ledger.LearningPaths))
		for _, lp := range ledger.LearningPaths {
			paths = append(paths, lp)
		}
		sort.Slice(paths, func(i, j int) bool { return paths[i].Title < paths[j].Title })
		for _, lp := range paths {
			fmt.Fprintf(w, "  %s\t%s\t%d/%d courses\t%d failed\n",
				lp.Title, lp.Status, lp.CompletedCourses, lp.TotalCourses, lp.FailedCourses)
		}
		w.Flush()
	}

	if failed := store.GetFailedCourses(); len(failed) > 0 {
		fmt.Println("\nFailed courses:")
		for _, course := range failed {
			fmt.Printf("  %s (%s): %s\n", course.Title, course.ID, course.Error)
		}
	}

	if failed := store.GetFailedUnits(); len(failed) > 0 {
		fmt.Println("\nFailed units:")
		for _, ref := range failed {
			fmt.Printf("  %s / %s (%s): %s\n", ref.CourseTitle, ref.Unit.Title, ref.Unit.ID, ref.Unit.Error)
		}
	}

	if recent := store.RecentErrors(statusErrors); len(recent) > 0 {
		fmt.Println("\nRecent errors:")
		for _, rec := range recent {
			fmt.Printf("  %s  [%s] %s: %s\n",
				rec.Timestamp.Format("2006-01-02 15:04"), rec.Kind, rec.Title, rec.Message)
		}
	}

	return nil
}
