// Package archiver walks the learning-path → course → chapter → unit
// hierarchy sequentially, consulting the checkpoint ledger to decide what
// to skip, resume, or retry. Failures are isolated: one bad unit never
// aborts its course, one bad course never aborts its siblings.
package archiver

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"coursevault/pkg/checkpoint"
	"coursevault/pkg/config"
	"coursevault/pkg/logger"
	"coursevault/pkg/metadata"
	"coursevault/pkg/models"
	"coursevault/pkg/storage"
)

// Archiver drives one download session
type Archiver struct {
	store   *checkpoint.Store
	storage *storage.Manager
	media   VideoFetcher
	files   FileDownloader
	pacer   Pacer
	cfg     *config.Config
	logger  logger.Logger
}

// New assembles an archiver from its collaborators
func New(store *checkpoint.Store, mgr *storage.Manager, media VideoFetcher, files FileDownloader, pacer Pacer, cfg *config.Config, log logger.Logger) *Archiver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Archiver{
		store:   store,
		storage: mgr,
		media:   media,
		files:   files,
		pacer:   pacer,
		cfg:     cfg,
		logger:  log.WithField("component", "archiver"),
	}
}

// ArchiveLearningPath processes every course of the path in order. A
// course-level failure is recorded and the walk continues with the next
// course; only context cancellation aborts the path.
func (a *Archiver) ArchiveLearningPath(ctx context.Context, lp *models.LearningPath) error {
	a.store.StartLearningPath(lp.ID, lp.Title)
	a.logger.WithFields(map[string]interface{}{
		"path_id": lp.ID,
		"courses": len(lp.Courses),
	}).Info("Archiving learning path")

	for i := range lp.Courses {
		if err := ctx.Err(); err != nil {
			return err
		}
		course := &lp.Courses[i]
		if err := a.ArchiveCourse(ctx, course, lp); err != nil {
			if ctx.Err() != nil {
				return err
			}
			a.logger.WithFields(map[string]interface{}{
				"course_id": course.ID,
				"title":     course.Title,
			}).WithError(err).Error("Course failed, continuing with next")
		}
	}

	a.store.CompleteLearningPath(lp.ID)
	return nil
}

// ArchiveCourse processes one course, optionally under a learning path.
// Fully completed courses are skipped; a course completed under a
// different path is satisfied by copying its artifacts; otherwise only
// non-completed units are processed.
func (a *Archiver) ArchiveCourse(ctx context.Context, course *models.Course, lp *models.LearningPath) error {
	pathID, pathTitle := "", ""
	if lp != nil {
		pathID = lp.ID
		pathTitle = safeName(lp.Title)
	}

	if a.store.ShouldSkipCourse(course.ID) {
		if pathID != "" && !a.ownedByPath(course.ID, pathID) {
			return a.duplicateCourse(ctx, course, pathID, pathTitle)
		}
		a.logger.WithField("course_id", course.ID).Info("Course already archived, skipping")
		return nil
	}

	resuming := a.store.HasPendingUnits(course.ID)
	a.store.StartCourse(course.ID, course.Title, pathID)
	if resuming {
		a.logger.WithField("course_id", course.ID).Info("Resuming course with pending units")
	}

	courseDir, err := a.storage.CourseDir(pathTitle, safeName(course.Title))
	if err != nil {
		a.store.FailCourse(course.ID, err.Error())
		return err
	}

	for ci, chapter := range course.Chapters {
		chapterDir, err := a.storage.ChapterDir(courseDir, fmt.Sprintf("%02d - %s", ci+1, safeName(chapter.Title)))
		if err != nil {
			a.store.FailCourse(course.ID, err.Error())
			return err
		}

		for ui := range chapter.Units {
			unit := &chapter.Units[ui]
			if a.store.IsUnitCompleted(course.ID, unit.ID) {
				continue
			}
			if err := a.processUnit(ctx, course.ID, unit, chapterDir, ui+1); err != nil {
				// Cancellation abandons the unit in progress; it counts
				// as interrupted and is retried on the next run.
				if ctx.Err() != nil {
					return err
				}
				a.store.FailUnit(course.ID, unit.ID, err.Error())
				a.logger.WithFields(map[string]interface{}{
					"course_id": course.ID,
					"unit_id":   unit.ID,
					"title":     unit.Title,
				}).WithError(err).Error("Unit failed, continuing with next")
				continue
			}
			a.store.CompleteUnit(course.ID, unit.ID)
		}
	}

	if err := metadata.FromCourse(course).Save(courseDir); err != nil {
		a.logger.WithError(err).Warn("Failed to write course metadata")
	}

	// The course transitions to completed even when some units failed;
	// their failed status keeps the course re-enterable.
	a.store.CompleteCourse(course.ID)
	return nil
}

// processUnit downloads one unit's media and auxiliary files
func (a *Archiver) processUnit(ctx context.Context, courseID string, unit *models.Unit, chapterDir string, ordinal int) error {
	if err := a.pacer.Pause(ctx); err != nil {
		return err
	}
	a.store.StartUnit(courseID, unit.ID, unit.Title)

	if !unit.HasVideo() {
		// Lectures and quizzes carry no media; they are recorded as done
		a.logger.WithFields(map[string]interface{}{
			"unit_id": unit.ID,
			"type":    string(unit.Type),
		}).Debug("Unit carries no media")
		return nil
	}

	base := fmt.Sprintf("%02d - %s", ordinal, safeName(unit.Title))
	outputPath := filepath.Join(chapterDir, base+".mp4")

	// A leftover empty file never satisfies a resume
	if a.storage.FileSize(outputPath) > 0 && !a.cfg.Output.OverwriteExisting {
		a.logger.WithField("path", outputPath).Debug("Output already present, skipping download")
	} else {
		if err := a.media.FetchVideo(ctx, unit, outputPath); err != nil {
			return err
		}
	}

	a.downloadAuxiliary(ctx, unit, chapterDir, base)

	logger.LogUnitDownload(courseID, unit.ID, "pipeline", true, nil)
	return nil
}

// downloadAuxiliary fetches subtitles and attached resources next to the
// unit's video. Auxiliary failures are logged but never fail the unit.
func (a *Archiver) downloadAuxiliary(ctx context.Context, unit *models.Unit, chapterDir, base string) {
	for i, subURL := range unit.Video.SubtitleURLs {
		ext := urlExt(subURL)
		if ext == "" {
			ext = ".vtt"
		}
		dest := filepath.Join(chapterDir, base+ext)
		if len(unit.Video.SubtitleURLs) > 1 {
			dest = filepath.Join(chapterDir, fmt.Sprintf("%s.%d%s", base, i+1, ext))
		}
		if a.storage.Exists(dest) && !a.cfg.Output.OverwriteExisting {
			continue
		}
		if err := a.files.Download(ctx, subURL, dest); err != nil {
			a.logger.WithField("url", subURL).WithError(err).Warn("Subtitle download failed")
		}
	}

	for _, res := range unit.Resources {
		name := safeName(res.Title)
		if ext := urlExt(res.URL); ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
			name += ext
		}
		dest := filepath.Join(chapterDir, name)
		if a.storage.Exists(dest) && !a.cfg.Output.OverwriteExisting {
			continue
		}
		if err := a.files.Download(ctx, res.URL, dest); err != nil {
			a.logger.WithField("url", res.URL).WithError(err).Warn("Resource download failed")
		}
	}
}

// duplicateCourse satisfies a course that already finished under another
// learning path by copying its artifacts into this path's tree. Copy
// failure falls back to a full re-download.
func (a *Archiver) duplicateCourse(ctx context.Context, course *models.Course, pathID, pathTitle string) error {
	srcDir, ok := a.findCourseArtifacts(course)
	dstDir := filepath.Join(a.storage.BaseDir(), pathTitle, safeName(course.Title))

	if ok {
		err := a.storage.CopyCourse(srcDir, dstDir)
		if err == nil {
			a.logger.WithFields(map[string]interface{}{
				"course_id": course.ID,
				"from":      srcDir,
				"to":        dstDir,
			}).Info("Course duplicated from existing archive")
			a.store.StartCourse(course.ID, course.Title, pathID)
			a.store.CompleteCourse(course.ID)
			return nil
		}
		a.logger.WithError(err).Warn("Course duplication failed, re-downloading")
	} else {
		a.logger.WithField("course_id", course.ID).Warn("Archived course artifacts not found, re-downloading")
	}

	a.store.ResetCourse(course.ID)
	lp := &models.LearningPath{ID: pathID, Title: pathTitle}
	return a.ArchiveCourse(ctx, course, lp)
}

// findCourseArtifacts locates the on-disk tree of an already-downloaded
// course by checking the directories its owning paths imply.
func (a *Archiver) findCourseArtifacts(course *models.Course) (string, bool) {
	ledger := a.store.Ledger()
	rec, exists := ledger.Courses[course.ID]
	if !exists {
		return "", false
	}

	var candidates []string
	for _, ownerID := range rec.LearningPaths {
		if owner, ok := ledger.LearningPaths[ownerID]; ok {
			candidates = append(candidates, filepath.Join(a.storage.BaseDir(), safeName(owner.Title), safeName(course.Title)))
		}
	}
	candidates = append(candidates, filepath.Join(a.storage.BaseDir(), safeName(course.Title)))

	for _, dir := range candidates {
		if a.storage.Exists(dir) {
			return dir, true
		}
	}
	return "", false
}

// ownedByPath reports whether the ledger already records the course under
// the given learning path.
func (a *Archiver) ownedByPath(courseID, pathID string) bool {
	course, exists := a.store.Ledger().Courses[courseID]
	return exists && course.OwnedBy(pathID)
}

var nameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "",
	"?", "",
	"\"", "'",
	"<", "(",
	">", ")",
	"|", "-",
)

// safeName makes a title usable as a file or directory name
func safeName(title string) string {
	return strings.TrimSpace(nameReplacer.Replace(title))
}

// urlExt extracts a lowercase file extension from a URL, ignoring query
// strings.
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
