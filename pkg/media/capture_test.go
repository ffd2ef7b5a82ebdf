package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
)

// fakeClock provides virtual time so capture sessions spanning many
// simulated minutes run instantly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakePage scripts a player: position advances while playing, fragments
// are emitted at a fixed cadence, and behavior switches let tests model
// stuck playback and mid-capture duration drift.
type fakePage struct {
	clock *fakeClock

	duration     float64
	position     float64
	rate         float64
	rateOverride float64 // when > 0, ignore the rate the capturer sets

	respCh    chan CapturedResponse
	emitEvery float64 // simulated seconds per fragment, 0 disables
	emitLimit int
	emitted   int
	sinceEmit float64

	frozen  bool // position never advances, seeks ignored
	driftAt float64
	driftTo float64
	elapsed float64

	reloads int
	seeks   int
}

func newFakePage(duration float64) *fakePage {
	return &fakePage{
		duration: duration,
		respCh:   make(chan CapturedResponse, 10000),
	}
}

// advance simulates d of wall time passing
func (p *fakePage) advance(d time.Duration) {
	dt := d.Seconds()
	p.elapsed += dt

	if p.driftAt > 0 && p.elapsed >= p.driftAt {
		p.duration = p.driftTo
	}

	if !p.frozen && p.rate > 0 {
		p.position = math.Min(p.position+dt*p.rate, p.duration)
	}

	if p.emitEvery > 0 && p.emitted < p.emitLimit {
		p.sinceEmit += dt
		for p.sinceEmit >= p.emitEvery && p.emitted < p.emitLimit {
			p.sinceEmit -= p.emitEvery
			p.emitted++
			p.respCh <- CapturedResponse{
				URL:  fmt.Sprintf("https://cdn.example.com/video/seg_%05d.ts", p.emitted),
				Body: []byte("fragment-bytes"),
			}
		}
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return nil }

func (p *fakePage) Reload(ctx context.Context) error {
	p.reloads++
	return nil
}

func (p *fakePage) PreparePlayback(ctx context.Context, rate float64) error {
	if p.rateOverride > 0 {
		p.rate = p.rateOverride
	} else {
		p.rate = rate
	}
	return nil
}

func (p *fakePage) Seek(ctx context.Context, position float64) error {
	p.seeks++
	if !p.frozen {
		p.position = math.Min(position, p.duration)
	}
	return nil
}

func (p *fakePage) State(ctx context.Context) (PlayerState, error) {
	return PlayerState{Position: p.position, Duration: p.duration, Ready: true}, nil
}

func (p *fakePage) Responses() <-chan CapturedResponse { return p.respCh }

func newTestCapturer(t *testing.T, page *fakePage, cfg config.CaptureConfig) *Capturer {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	page.clock = clock

	c := NewCapturer(cfg, logger.NewNopLogger())
	c.now = clock.Now
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		clock.Advance(d)
		page.advance(d)
		return nil
	}
	return c
}

func TestCaptureNormalCompletion(t *testing.T) {
	// 600 s video, ~10 s fragments: estimate is 70. One fragment per
	// simulated second keeps the session from ever idling.
	page := newFakePage(600)
	page.emitEvery = 1
	page.emitLimit = 70

	c := newTestCapturer(t, page, config.DefaultConfig().Capture)
	result, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.NoError(t, err)

	estimate := 70
	assert.GreaterOrEqual(t, len(result.Fragments), estimate*90/100, "stop within -10%% of estimate")
	assert.LessOrEqual(t, len(result.Fragments), estimate*110/100, "stop within +10%% of estimate")
	assert.False(t, result.Partial)
	assert.GreaterOrEqual(t, page.position, 600.0-15, "stop only once playback corroborates near-end")
	assert.Equal(t, 600.0, result.Duration)
}

func TestCaptureCountAloneNeverStopsEarly(t *testing.T) {
	// Fragments arrive fast: the estimate is reached long before the
	// player gets near the end. Capture must keep running on position.
	page := newFakePage(600)
	page.emitEvery = 0.5
	page.emitLimit = 200

	c := newTestCapturer(t, page, config.DefaultConfig().Capture)
	result, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, page.position, 600.0-15)
	assert.GreaterOrEqual(t, len(result.Fragments), 67, "estimate was reached")
	assert.GreaterOrEqual(t, page.elapsed, 60.0, "session ran until position caught up")
}

func TestCaptureDurationDriftStopsImmediately(t *testing.T) {
	page := newFakePage(600)
	page.emitEvery = 1
	page.emitLimit = 500
	page.driftAt = 20 // autoplay "advances" after 20 simulated seconds
	page.driftTo = 900

	c := newTestCapturer(t, page, config.DefaultConfig().Capture)
	result, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Partial)
	// Only pre-jump fragments: nothing from after the drift tick
	assert.LessOrEqual(t, len(result.Fragments), 20)
	assert.Greater(t, len(result.Fragments), 0)
}

func TestCaptureStuckAtStartFailsAfterReloads(t *testing.T) {
	page := newFakePage(600)
	page.frozen = true // player never starts, nothing is emitted

	c := newTestCapturer(t, page, config.DefaultConfig().Capture)
	_, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeCapture, typedErr.Type)
	assert.Equal(t, 2, page.reloads, "both reload attempts were spent")
}

func TestCaptureIdleStopNearCompletion(t *testing.T) {
	// 55 of ~70 fragments (ratio 0.79) then the stream goes quiet while
	// playback keeps moving. The idle cooldown should close the session.
	page := newFakePage(600)
	page.emitEvery = 1
	page.emitLimit = 55

	cfg := config.DefaultConfig().Capture
	c := newTestCapturer(t, page, cfg)
	result, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.NoError(t, err)
	assert.Len(t, result.Fragments, 55)
}

func TestCaptureFragmentCeiling(t *testing.T) {
	page := newFakePage(600)
	page.emitEvery = 0.1
	page.emitLimit = 100000

	cfg := config.DefaultConfig().Capture
	cfg.FragmentCeiling = 40
	c := newTestCapturer(t, page, cfg)
	result, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Partial)
	assert.GreaterOrEqual(t, len(result.Fragments), 40)
	assert.Less(t, len(result.Fragments), 60, "ceiling stops the session promptly")
}

func TestCaptureSessionTimeout(t *testing.T) {
	// Barely any fragments trickle in; the clamped session deadline
	// expires with a ratio far below acceptance.
	page := newFakePage(600)
	page.emitEvery = 25
	page.emitLimit = 1000

	cfg := config.DefaultConfig().Capture
	cfg.MinTimeout = 30 * time.Second
	cfg.MaxTimeout = 30 * time.Second
	c := newTestCapturer(t, page, cfg)
	_, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeCapture, typedErr.Type)
}

func TestCaptureZeroFragmentsIsTerminal(t *testing.T) {
	page := newFakePage(600)
	// Playback runs to the end but the listener never sees a fragment

	cfg := config.DefaultConfig().Capture
	c := newTestCapturer(t, page, cfg)
	_, err := c.Run(context.Background(), page, "https://example.com/unit", t.TempDir())
	require.Error(t, err)

	var typedErr *errs.Error
	require.True(t, errors.As(err, &typedErr))
	assert.Equal(t, errs.ErrorTypeCapture, typedErr.Type)
}

func TestAddFragmentDedupesByURL(t *testing.T) {
	c := NewCapturer(config.DefaultConfig().Capture, logger.NewNopLogger())
	st := &captureState{seen: make(map[string]bool)}
	dir := t.TempDir()

	c.addFragment(st, CapturedResponse{URL: "https://cdn/seg_00003.ts", Body: []byte("a")}, dir)
	c.addFragment(st, CapturedResponse{URL: "https://cdn/seg_00003.ts", Body: []byte("a")}, dir)
	c.addFragment(st, CapturedResponse{URL: "https://cdn/seg_00004.ts", Body: []byte("b")}, dir)

	require.Len(t, st.fragments, 2)
	assert.Equal(t, 0, st.fragments[0].Index)
	assert.Equal(t, 3, st.fragments[0].Sequence)
	assert.Equal(t, 4, st.maxSeq)
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://cdn.example.com/v/seg_00042.ts", 42},
		{"https://cdn.example.com/v/chunk-7.ts?token=abc", 7},
		{"https://cdn.example.com/v/playlist.m3u8", 0},
		{"https://cdn.example.com/v/noseq.ts", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSequence(tt.url), tt.url)
	}
}
