package media

import "context"

// Fetcher is the HTTP download surface the pipeline consumes. The
// session's rate-limited downloader satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Download(ctx context.Context, url, destPath string) error
}

// Remuxer is the external muxing surface: segments or a manifest in,
// playable container out.
type Remuxer interface {
	ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error
	RemuxManifest(ctx context.Context, manifestURL, outputPath string) error
}

// Fragment is one captured transport-stream segment. Index is the local
// capture-order position and is authoritative for reassembly; Sequence
// is the number parsed from the URL and is used only to resume playback
// after a reload without re-capturing finished segments.
type Fragment struct {
	Index    int
	Sequence int
	URL      string
	Size     int64
	Path     string
}

// PlayerState is a point-in-time reading of the page's video element
type PlayerState struct {
	Position float64 // seconds
	Duration float64 // seconds, 0 while unknown
	Ready    bool
}

// CapturedResponse is one network response body observed by the page's
// response listener.
type CapturedResponse struct {
	URL  string
	Body []byte
}

// Page abstracts the single authenticated browser page the capture loop
// drives. The chromedp adapter in internal/browser implements it; tests
// use a scripted fake.
type Page interface {
	// Navigate opens url and waits for the player to be present
	Navigate(ctx context.Context, url string) error
	// Reload reloads the current page
	Reload(ctx context.Context) error
	// PreparePlayback mutes the video, sets the playback rate and starts
	// playing
	PreparePlayback(ctx context.Context, rate float64) error
	// Seek jumps the video element to the given position in seconds
	Seek(ctx context.Context, position float64) error
	// State reads the video element's current position and duration
	State(ctx context.Context) (PlayerState, error)
	// Responses feeds every observed media response to the capture loop
	Responses() <-chan CapturedResponse
}
