package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"coursevault/pkg/logger"
)

// Store owns the ledger for a session. It has exactly one logical writer
// (the archiver's flow), persists a full snapshot after every mutation,
// and treats storage failures as non-fatal: in-memory state stays
// authoritative for the session.
type Store struct {
	path   string
	logger logger.Logger
	ledger *Ledger
}

// NewStore creates a store backed by the given ledger file and loads it.
// A missing or corrupt file never fails the session; the store starts
// from an empty ledger instead.
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Store{
		path:   path,
		logger: log.WithField("component", "checkpoint"),
	}
	s.load()
	return s
}

// Path returns the ledger file location
func (s *Store) Path() string {
	return s.path
}

// Ledger exposes the in-memory ledger for read-only reporting
func (s *Store) Ledger() *Ledger {
	return s.ledger
}

// load reads the ledger file. Missing or unreadable files are logged and
// replaced by an empty ledger; load never surfaces an error to callers.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Ledger unreadable, starting fresh")
		}
		s.ledger = NewLedger()
		return
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		s.logger.WithError(err).Warn("Ledger corrupt, starting fresh")
		s.ledger = NewLedger()
		return
	}

	if ledger.LearningPaths == nil {
		ledger.LearningPaths = make(map[string]*LearningPath)
	}
	if ledger.Courses == nil {
		ledger.Courses = make(map[string]*Course)
	}
	for _, course := range ledger.Courses {
		if course.Units == nil {
			course.Units = make(map[string]*Unit)
		}
	}

	s.ledger = &ledger
	s.logger.InfoWithFields("Ledger loaded", map[string]interface{}{
		"path":    s.path,
		"courses": len(ledger.Courses),
		"paths":   len(ledger.LearningPaths),
	})
}

// persist writes a full snapshot atomically via temp file and rename.
// I/O failures are logged and swallowed.
func (s *Store) persist() {
	s.ledger.Metadata.UpdatedAt = time.Now()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.WithError(err).Error("Failed to create ledger directory")
		return
	}

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		s.logger.WithError(err).Error("Failed to create temporary ledger file")
		return
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.ledger); err != nil {
		file.Close()
		os.Remove(tempPath)
		s.logger.WithError(err).Error("Failed to encode ledger")
		return
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		s.logger.WithError(err).Error("Failed to sync ledger file")
		return
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		s.logger.WithError(err).Error("Failed to close ledger file")
		return
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		s.logger.WithError(err).Error("Failed to replace ledger file")
	}
}

// Backup copies the current ledger file aside before destructive
// maintenance operations.
func (s *Store) Backup() error {
	src, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger for backup: %w", err)
	}
	defer src.Close()

	backupPath := s.path + ".backup"
	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy ledger to backup: %w", err)
	}

	s.logger.WithField("backup", backupPath).Debug("Ledger backed up")
	return nil
}

// StartLearningPath creates the learning path if absent and marks it in
// progress. Re-starting an existing path is a no-op beyond timestamps.
func (s *Store) StartLearningPath(id, title string) {
	path, exists := s.ledger.LearningPaths[id]
	if !exists {
		path = &LearningPath{
			ID:        id,
			Title:     title,
			Status:    StatusInProgress,
			StartedAt: time.Now(),
		}
		s.ledger.LearningPaths[id] = path
	}
	path.Status = StatusInProgress
	path.UpdatedAt = time.Now()
	s.persist()
}

// CompleteLearningPath marks the path completed
func (s *Store) CompleteLearningPath(id string) {
	path, exists := s.ledger.LearningPaths[id]
	if !exists {
		return
	}
	path.Status = StatusCompleted
	path.UpdatedAt = time.Now()
	s.persist()
}

// StartCourse creates the course if absent; on a retry it preserves the
// existing units and merges parentPathID into the owning-path set without
// duplication. The course total moves only when the course is newly
// created or newly adopted by a path. Re-starting a course that already
// reached a terminal state rolls the matching counter back, so the
// eventual re-completion never double-counts.
func (s *Store) StartCourse(id, title, parentPathID string) {
	now := time.Now()
	course, exists := s.ledger.Courses[id]
	if !exists {
		course = &Course{
			ID:            id,
			Title:         title,
			Status:        StatusInProgress,
			LearningPaths: []string{},
			Units:         make(map[string]*Unit),
			StartedAt:     now,
		}
		s.ledger.Courses[id] = course
		s.ledger.Statistics.TotalCourses++
	}

	if parentPathID != "" && !course.OwnedBy(parentPathID) {
		course.LearningPaths = append(course.LearningPaths, parentPathID)
		if path, ok := s.ledger.LearningPaths[parentPathID]; ok {
			path.TotalCourses++
			// A path adopting an already-finished course inherits its outcome
			switch course.Status {
			case StatusCompleted:
				path.CompletedCourses++
			case StatusFailed:
				path.FailedCourses++
			}
			path.UpdatedAt = now
		}
	}

	s.leaveCourseTerminal(course)
	course.Status = StatusInProgress
	course.Error = ""
	course.UpdatedAt = now
	s.persist()
}

// CompleteCourse sets the terminal completed status, updating aggregates
// exactly once per transition.
func (s *Store) CompleteCourse(id string) {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return
	}
	if course.Status == StatusCompleted {
		return
	}

	s.leaveCourseTerminal(course)
	course.Status = StatusCompleted
	course.Error = ""
	course.UpdatedAt = time.Now()
	s.ledger.Statistics.CompletedCourses++
	s.eachOwningPath(course, func(p *LearningPath) { p.CompletedCourses++ })
	s.persist()
}

// FailCourse sets the terminal failed status, records the error and
// appends to the error log.
func (s *Store) FailCourse(id, message string) {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return
	}
	if course.Status == StatusFailed && course.Error == message {
		return
	}

	s.leaveCourseTerminal(course)
	course.Status = StatusFailed
	course.Error = message
	course.UpdatedAt = time.Now()
	s.ledger.Statistics.FailedCourses++
	s.eachOwningPath(course, func(p *LearningPath) { p.FailedCourses++ })
	s.appendError(ErrorRecord{
		Kind:      "course",
		CourseID:  id,
		Title:     course.Title,
		Message:   message,
		Timestamp: time.Now(),
	})
	s.persist()
}

// StartUnit creates the unit if absent and marks it in progress.
// Counting mirrors StartCourse: units are counted once on creation, and
// re-starting a terminal unit rolls its counter back first.
func (s *Store) StartUnit(courseID, unitID, title string) {
	course, exists := s.ledger.Courses[courseID]
	if !exists {
		return
	}

	now := time.Now()
	unit, exists := course.Units[unitID]
	if !exists {
		unit = &Unit{
			ID:        unitID,
			Title:     title,
			Status:    StatusInProgress,
			StartedAt: now,
		}
		course.Units[unitID] = unit
		s.ledger.Statistics.TotalUnits++
	}

	s.leaveUnitTerminal(unit)
	unit.Status = StatusInProgress
	unit.Error = ""
	unit.UpdatedAt = now
	course.UpdatedAt = now
	s.persist()
}

// CompleteUnit sets the unit's terminal completed status
func (s *Store) CompleteUnit(courseID, unitID string) {
	course, exists := s.ledger.Courses[courseID]
	if !exists {
		return
	}
	unit, exists := course.Units[unitID]
	if !exists {
		return
	}
	if unit.Status == StatusCompleted {
		return
	}

	s.leaveUnitTerminal(unit)
	unit.Status = StatusCompleted
	unit.Error = ""
	unit.UpdatedAt = time.Now()
	course.UpdatedAt = unit.UpdatedAt
	s.ledger.Statistics.CompletedUnits++
	s.persist()
}

// FailUnit sets the unit's terminal failed status and appends to the
// error log.
func (s *Store) FailUnit(courseID, unitID, message string) {
	course, exists := s.ledger.Courses[courseID]
	if !exists {
		return
	}
	unit, exists := course.Units[unitID]
	if !exists {
		return
	}
	if unit.Status == StatusFailed && unit.Error == message {
		return
	}

	s.leaveUnitTerminal(unit)
	unit.Status = StatusFailed
	unit.Error = message
	unit.UpdatedAt = time.Now()
	course.UpdatedAt = unit.UpdatedAt
	s.ledger.Statistics.FailedUnits++
	s.appendError(ErrorRecord{
		Kind:      "unit",
		CourseID:  courseID,
		UnitID:    unitID,
		Title:     unit.Title,
		Message:   message,
		Timestamp: time.Now(),
	})
	s.persist()
}

// ShouldSkipCourse reports whether the course is fully done: completed
// and with no unit left in a non-completed state.
func (s *Store) ShouldSkipCourse(id string) bool {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return false
	}
	return course.Status == StatusCompleted && !s.HasPendingUnits(id)
}

// HasPendingUnits reports whether any unit of the course still needs work
// (pending, interrupted, or failed).
func (s *Store) HasPendingUnits(id string) bool {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return false
	}
	for _, unit := range course.Units {
		switch unit.Status {
		case StatusPending, StatusInProgress, StatusFailed:
			return true
		}
	}
	return false
}

// IsUnitCompleted reports whether a unit already finished successfully
func (s *Store) IsUnitCompleted(courseID, unitID string) bool {
	course, exists := s.ledger.Courses[courseID]
	if !exists {
		return false
	}
	unit, exists := course.Units[unitID]
	return exists && unit.Status == StatusCompleted
}

// CourseStatus returns the course's current status and whether it exists
func (s *Store) CourseStatus(id string) (Status, bool) {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return StatusPending, false
	}
	return course.Status, true
}

// ResetCourse forces the course back to in_progress, clears its error,
// resets all units to pending, and decrements statistics by exactly the
// prior completed/failed counts for that course.
func (s *Store) ResetCourse(id string) bool {
	course, exists := s.ledger.Courses[id]
	if !exists {
		return false
	}

	now := time.Now()
	s.leaveCourseTerminal(course)
	course.Status = StatusInProgress
	course.Error = ""
	course.UpdatedAt = now

	for _, unit := range course.Units {
		s.leaveUnitTerminal(unit)
		unit.Status = StatusPending
		unit.Error = ""
		unit.UpdatedAt = now
	}

	s.persist()
	s.logger.WithField("course_id", id).Info("Course reset")
	return true
}

// RetryFailed flips failed units back to pending so the next run
// re-processes them. An empty courseID targets every course. Failed
// courses themselves return to in_progress. Returns the number of units
// flipped.
func (s *Store) RetryFailed(courseID string) int {
	flipped := 0
	now := time.Now()

	for id, course := range s.ledger.Courses {
		if courseID != "" && id != courseID {
			continue
		}

		for _, unit := range course.Units {
			if unit.Status != StatusFailed {
				continue
			}
			s.leaveUnitTerminal(unit)
			unit.Status = StatusPending
			unit.Error = ""
			unit.UpdatedAt = now
			flipped++
		}

		if course.Status == StatusFailed {
			s.leaveCourseTerminal(course)
			course.Status = StatusInProgress
			course.Error = ""
			course.UpdatedAt = now
		}
	}

	if flipped > 0 {
		s.persist()
	}
	return flipped
}

// FailedUnitRef identifies a failed unit within its course
type FailedUnitRef struct {
	CourseID    string
	CourseTitle string
	Unit        *Unit
}

// GetFailedUnits returns every unit currently in the failed state
func (s *Store) GetFailedUnits() []FailedUnitRef {
	var failed []FailedUnitRef
	for _, course := range s.ledger.Courses {
		for _, unit := range course.Units {
			if unit.Status == StatusFailed {
				failed = append(failed, FailedUnitRef{
					CourseID:    course.ID,
					CourseTitle: course.Title,
					Unit:        unit,
				})
			}
		}
	}
	return failed
}

// GetFailedCourses returns every course currently in the failed state
func (s *Store) GetFailedCourses() []*Course {
	var failed []*Course
	for _, course := range s.ledger.Courses {
		if course.Status == StatusFailed {
			failed = append(failed, course)
		}
	}
	return failed
}

// GetStatistics returns a copy of the aggregate counters
func (s *Store) GetStatistics() Statistics {
	return s.ledger.Statistics
}

// RecentErrors returns up to n of the most recent error records
func (s *Store) RecentErrors(n int) []ErrorRecord {
	errs := s.ledger.Errors
	if len(errs) <= n {
		return errs
	}
	return errs[len(errs)-n:]
}

// appendError records a failure in the append-only error log
func (s *Store) appendError(record ErrorRecord) {
	s.ledger.Errors = append(s.ledger.Errors, record)
}

// leaveCourseTerminal rolls back the counter for the course's current
// terminal status, if any. Called before any transition out of a terminal
// state so counters stay exact across restarts and resets.
func (s *Store) leaveCourseTerminal(course *Course) {
	switch course.Status {
	case StatusCompleted:
		s.ledger.Statistics.CompletedCourses--
		s.eachOwningPath(course, func(p *LearningPath) { p.CompletedCourses-- })
	case StatusFailed:
		s.ledger.Statistics.FailedCourses--
		s.eachOwningPath(course, func(p *LearningPath) { p.FailedCourses-- })
	}
}

// leaveUnitTerminal mirrors leaveCourseTerminal at unit granularity
func (s *Store) leaveUnitTerminal(unit *Unit) {
	switch unit.Status {
	case StatusCompleted:
		s.ledger.Statistics.CompletedUnits--
	case StatusFailed:
		s.ledger.Statistics.FailedUnits--
	}
}

// eachOwningPath applies fn to every learning path that owns the course
func (s *Store) eachOwningPath(course *Course, fn func(*LearningPath)) {
	for _, pathID := range course.LearningPaths {
		if path, ok := s.ledger.LearningPaths[pathID]; ok {
			fn(path)
			path.UpdatedAt = time.Now()
		}
	}
}
