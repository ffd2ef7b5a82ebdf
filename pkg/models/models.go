// Package models holds the structured records a site adapter supplies to
// the archiver. The core never depends on concrete page markup; it only
// consumes these fields.
package models

// UnitType classifies what a unit carries
type UnitType string

const (
	UnitTypeVideo   UnitType = "video"
	UnitTypeLecture UnitType = "lecture"
	UnitTypeQuiz    UnitType = "quiz"
)

// Catalog is the exchange document a site adapter produces: the learning
// paths and standalone courses one download session should archive.
type Catalog struct {
	LearningPaths []LearningPath `json:"learning_paths,omitempty"`
	Courses       []Course       `json:"courses,omitempty"`
}

// LearningPath is a curated sequence of courses
type LearningPath struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	URL     string   `json:"url,omitempty"`
	Courses []Course `json:"courses,omitempty"`
}

// Course is one course with its chapters in order
type Course struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url,omitempty"`
	Chapters []Chapter `json:"chapters,omitempty"`
}

// Chapter groups consecutive units
type Chapter struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Units []Unit `json:"units,omitempty"`
}

// Unit is a single item of course content. Video is nil for units that
// carry no media (lectures, quizzes).
type Unit struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	URL       string     `json:"url,omitempty"`
	Type      UnitType   `json:"type"`
	Video     *Video     `json:"video,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}

// HasVideo reports whether the unit carries downloadable media
func (u *Unit) HasVideo() bool {
	return u.Type == UnitTypeVideo && u.Video != nil
}

// Video describes the media sources of a unit. ManifestURL is the primary
// manifest; FallbackURL, when present, points at a manifest of the other
// format (HLS vs DASH).
type Video struct {
	ManifestURL  string   `json:"manifest_url"`
	FallbackURL  string   `json:"fallback_url,omitempty"`
	SubtitleURLs []string `json:"subtitle_urls,omitempty"`
	DurationSec  float64  `json:"duration_sec,omitempty"`
}

// Resource is an attached file downloaded next to the unit's media
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
