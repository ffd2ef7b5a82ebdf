package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
	"coursevault/pkg/models"
)

// fakeFetcher serves canned bodies by URL and can force typed failures
type fakeFetcher struct {
	bodies map[string][]byte
	fail   map[string]error
	gets   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.gets = append(f.gets, url)
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, errs.NewHTTP(404, "not found: "+url)
	}
	return body, nil
}

func (f *fakeFetcher) Download(ctx context.Context, url, destPath string) error {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, body, 0644)
}

// fakeRemuxer concatenates inputs verbatim instead of shelling out
type fakeRemuxer struct {
	remuxErr   error
	remuxCalls []string
	concats    [][]string
}

func (m *fakeRemuxer) ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error {
	m.concats = append(m.concats, append([]string(nil), segmentPaths...))
	var out []byte
	for _, p := range segmentPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(outputPath, out, 0644)
}

func (m *fakeRemuxer) RemuxManifest(ctx context.Context, manifestURL, outputPath string) error {
	m.remuxCalls = append(m.remuxCalls, manifestURL)
	if m.remuxErr != nil {
		return m.remuxErr
	}
	return os.WriteFile(outputPath, []byte("remuxed video content"), 0644)
}

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
seg_00000.ts
#EXTINF:10.0,
seg_00001.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
high/index.m3u8
`

func testPipelineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Download.MinOutputBytes = 4
	return cfg
}

func videoUnit(manifest, fallback string) *models.Unit {
	return &models.Unit{
		ID:    "unit-1",
		Title: "Closures",
		URL:   "https://example.com/classes/unit-1",
		Type:  models.UnitTypeVideo,
		Video: &models.Video{ManifestURL: manifest, FallbackURL: fallback},
	}
}

func TestFetchVideoDirectHLS(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/index.m3u8":  []byte(mediaPlaylist),
		"https://cdn.example.com/v/seg_00000.ts": []byte("AAAA"),
		"https://cdn.example.com/v/seg_00001.ts": []byte("BBBB"),
	}}
	remuxer := &fakeRemuxer{}
	cfg := testPipelineConfig()
	p := NewPipeline(fetcher, remuxer, nil, nil, cfg, logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/index.m3u8", "")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data), "segments concatenated in playlist order")
}

func TestFetchVideoMasterPlaylistPicksBestVariant(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/master.m3u8":     []byte(masterPlaylist),
		"https://cdn.example.com/v/high/index.m3u8": []byte(mediaPlaylist),
		"https://cdn.example.com/v/high/seg_00000.ts": []byte("AAAA"),
		"https://cdn.example.com/v/high/seg_00001.ts": []byte("BBBB"),
	}}
	remuxer := &fakeRemuxer{}
	p := NewPipeline(fetcher, remuxer, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/master.m3u8", "")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))
	assert.Contains(t, fetcher.gets, "https://cdn.example.com/v/high/index.m3u8")
	assert.NotContains(t, fetcher.gets, "https://cdn.example.com/v/low/index.m3u8")
}

func TestFetchVideoDASHRemux(t *testing.T) {
	remuxer := &fakeRemuxer{}
	p := NewPipeline(&fakeFetcher{}, remuxer, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/stream.mpd", "")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))
	assert.Equal(t, []string{"https://cdn.example.com/v/stream.mpd"}, remuxer.remuxCalls)
}

func TestFetchVideoFallbackManifest(t *testing.T) {
	// DASH remux rejected by the origin, HLS fallback succeeds
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/index.m3u8":  []byte(mediaPlaylist),
		"https://cdn.example.com/v/seg_00000.ts": []byte("AAAA"),
		"https://cdn.example.com/v/seg_00001.ts": []byte("BBBB"),
	}}
	remuxer := &fakeRemuxer{remuxErr: errs.New(errs.ErrorTypeMux, "ffmpeg failed: origin rejected request")}
	p := NewPipeline(fetcher, remuxer, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/stream.mpd", "https://cdn.example.com/v/index.m3u8")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))
	assert.FileExists(t, output)
}

func TestFetchVideoForbiddenEscalatesToCapture(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{
		"https://cdn.example.com/v/index.m3u8": errs.NewHTTP(403, "origin blocked direct fetch"),
	}}
	remuxer := &fakeRemuxer{}

	// A scripted page that plays a short video and emits its fragments
	page := newFakePage(100)
	page.emitEvery = 1
	page.emitLimit = 20

	cfg := testPipelineConfig()
	capturer := newTestCapturer(t, page, cfg.Capture)
	p := NewPipeline(fetcher, remuxer, capturer, page, cfg, logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/index.m3u8", "")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))

	assert.FileExists(t, output)
	require.Len(t, remuxer.concats, 1)
	assert.NotEmpty(t, remuxer.concats[0])
	// Fragments were handed over in capture order
	for i, path := range remuxer.concats[0] {
		assert.Contains(t, path, fmt.Sprintf("fragment_%05d.ts", i))
	}
}

func TestFetchVideoForbiddenPrimaryWithFallbackEscalates(t *testing.T) {
	// The primary manifest is blocked with a 403 and the DASH fallback
	// fails for an unrelated reason. The earlier 403 must still reach
	// the capture escalation even though it is not the final error.
	fetcher := &fakeFetcher{fail: map[string]error{
		"https://cdn.example.com/v/index.m3u8": errs.NewHTTP(403, "origin blocked direct fetch"),
	}}
	remuxer := &fakeRemuxer{remuxErr: errs.New(errs.ErrorTypeMux, "ffmpeg failed: HTTP error 403 Forbidden")}

	page := newFakePage(100)
	page.emitEvery = 1
	page.emitLimit = 20

	cfg := testPipelineConfig()
	capturer := newTestCapturer(t, page, cfg.Capture)
	p := NewPipeline(fetcher, remuxer, capturer, page, cfg, logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/index.m3u8", "https://cdn.example.com/v/stream.mpd")
	require.NoError(t, p.FetchVideo(context.Background(), unit, output))

	assert.FileExists(t, output)
	assert.Equal(t, []string{"https://cdn.example.com/v/stream.mpd"}, remuxer.remuxCalls,
		"fallback was tried before escalating")
}

func TestFetchVideoForbiddenWithoutBrowserFails(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{
		"https://cdn.example.com/v/index.m3u8": errs.NewHTTP(403, "origin blocked direct fetch"),
	}}
	p := NewPipeline(fetcher, &fakeRemuxer{}, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	unit := videoUnit("https://cdn.example.com/v/index.m3u8", "")
	err := p.FetchVideo(context.Background(), unit, filepath.Join(t.TempDir(), "video.mp4"))
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeCapture, typedErr.Type)
}

func TestFetchVideoNotFoundDoesNotEscalate(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := NewPipeline(fetcher, &fakeRemuxer{}, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	unit := videoUnit("https://cdn.example.com/v/gone.m3u8", "")
	err := p.FetchVideo(context.Background(), unit, filepath.Join(t.TempDir(), "video.mp4"))
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeNotFound, typedErr.Type)
}

func TestFetchVideoRejectsTinyOutput(t *testing.T) {
	remuxer := &fakeRemuxer{}
	cfg := testPipelineConfig()
	cfg.Download.MinOutputBytes = 1024 * 1024
	p := NewPipeline(&fakeFetcher{}, remuxer, nil, nil, cfg, logger.NewNopLogger())

	output := filepath.Join(t.TempDir(), "video.mp4")
	unit := videoUnit("https://cdn.example.com/v/stream.mpd", "")
	err := p.FetchVideo(context.Background(), unit, output)
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeMux, typedErr.Type)
	assert.NoFileExists(t, output, "implausibly small output is removed")
}

func TestFetchVideoLectureUnit(t *testing.T) {
	p := NewPipeline(&fakeFetcher{}, &fakeRemuxer{}, nil, nil, testPipelineConfig(), logger.NewNopLogger())
	unit := &models.Unit{ID: "unit-2", Type: models.UnitTypeLecture}
	err := p.FetchVideo(context.Background(), unit, filepath.Join(t.TempDir(), "out.mp4"))
	assert.Error(t, err)
}

func TestManifestFormat(t *testing.T) {
	assert.Equal(t, "hls", manifestFormat("https://cdn/v/index.m3u8?token=x"))
	assert.Equal(t, "dash", manifestFormat("https://cdn/v/stream.mpd"))
	assert.Equal(t, "", manifestFormat("https://cdn/v/video.mp4"))
}

func TestEncryptedPlaylistIsManifestError(t *testing.T) {
	encrypted := strings.Replace(mediaPlaylist, "#EXTINF:10.0,\nseg_00000.ts",
		"#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\"\n#EXTINF:10.0,\nseg_00000.ts", 1)
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/index.m3u8": []byte(encrypted),
	}}
	p := NewPipeline(fetcher, &fakeRemuxer{}, nil, nil, testPipelineConfig(), logger.NewNopLogger())

	unit := videoUnit("https://cdn.example.com/v/index.m3u8", "")
	err := p.FetchVideo(context.Background(), unit, filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeManifest, typedErr.Type)
}
