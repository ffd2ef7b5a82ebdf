// Package metadata writes a descriptor file next to each archived course
// so the offline tree stays self-describing without the checkpoint
// ledger.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coursevault/pkg/models"
)

// fileName is the descriptor written into each course directory
const fileName = "course.json"

// CourseMetadata describes one archived course
type CourseMetadata struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`

	Chapters   []ChapterMetadata `json:"chapters,omitempty"`
	UnitCount  int               `json:"unit_count"`
	VideoCount int               `json:"video_count"`
}

// ChapterMetadata summarizes one chapter's units
type ChapterMetadata struct {
	ID    string         `json:"id"`
	Title string         `json:"title"`
	Units []UnitMetadata `json:"units,omitempty"`
}

// UnitMetadata records what a unit is and what it carries
type UnitMetadata struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// FromCourse builds the descriptor for a collected course
func FromCourse(course *models.Course) *CourseMetadata {
	meta := &CourseMetadata{
		ID:         course.ID,
		Title:      course.Title,
		URL:        course.URL,
		ArchivedAt: time.Now(),
	}

	for _, chapter := range course.Chapters {
		cm := ChapterMetadata{ID: chapter.ID, Title: chapter.Title}
		for _, unit := range chapter.Units {
			um := UnitMetadata{
				ID:    unit.ID,
				Title: unit.Title,
				Type:  string(unit.Type),
			}
			if unit.Video != nil {
				um.DurationSec = unit.Video.DurationSec
				meta.VideoCount++
			}
			cm.Units = append(cm.Units, um)
			meta.UnitCount++
		}
		meta.Chapters = append(meta.Chapters, cm)
	}

	return meta
}

// Save writes the descriptor into the course directory
func (m *CourseMetadata) Save(courseDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal course metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(courseDir, fileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write course metadata: %w", err)
	}
	return nil
}

// Load reads a course descriptor from a course directory
func Load(courseDir string) (*CourseMetadata, error) {
	data, err := os.ReadFile(filepath.Join(courseDir, fileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read course metadata: %w", err)
	}

	var meta CourseMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal course metadata: %w", err)
	}
	return &meta, nil
}

// Exists reports whether a course directory carries a descriptor
func Exists(courseDir string) bool {
	_, err := os.Stat(filepath.Join(courseDir, fileName))
	return err == nil
}
