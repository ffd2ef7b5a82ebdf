package archiver

import (
	"context"

	"coursevault/pkg/models"
)

// Collector is the site adapter that enumerates content. The archiver
// never touches page markup; it only walks the records a Collector
// returns.
type Collector interface {
	// FetchLearningPath resolves a learning path and its courses
	FetchLearningPath(ctx context.Context, pathURL string) (*models.LearningPath, error)
	// FetchCourse resolves one course with its chapters and units
	FetchCourse(ctx context.Context, courseURL string) (*models.Course, error)
}

// VideoFetcher produces a unit's playable video file. The media pipeline
// implements it.
type VideoFetcher interface {
	FetchVideo(ctx context.Context, unit *models.Unit, outputPath string) error
}

// FileDownloader fetches auxiliary files (subtitles, attached resources)
type FileDownloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// Pacer inserts the between-unit delay that keeps the session under the
// host's defensive rate limiting.
type Pacer interface {
	Pause(ctx context.Context) error
}
