package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
)

// pollInterval is the cadence of the capture loop's control tick
const pollInterval = time.Second

// progressInterval is how often a running capture reports its progress
const progressInterval = 30 * time.Second

// Capturer drives a browser page through accelerated playback and
// persists every transport-stream fragment the page requests. It is the
// last resort of the acquisition cascade, used when the origin rejects
// direct manifest fetches.
type Capturer struct {
	cfg    config.CaptureConfig
	logger logger.Logger

	// injectable for deterministic tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewCapturer creates a capturer with the given tuning
func NewCapturer(cfg config.CaptureConfig, log logger.Logger) *Capturer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Capturer{
		cfg:    cfg,
		logger: log.WithField("component", "capture"),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		now: time.Now,
	}
}

// CaptureResult is the outcome of one capture session
type CaptureResult struct {
	Fragments []Fragment
	Duration  float64
	Partial   bool
}

// captureState is the mutable state of one capture session
type captureState struct {
	fragments []Fragment
	seen      map[string]bool
	maxSeq    int

	knownDuration float64
	estimate      int

	start          time.Time
	deadline       time.Time
	lastFragmentAt time.Time
	lastSeekAt     time.Time
	lastProgressAt time.Time
	lastPosition   float64
	stuckSince     time.Time
	aggSeeked      bool
	reloads        int
}

// Run opens pageURL on the page, accelerates playback and captures
// fragments into tempDir until a termination condition fires. The caller
// owns tempDir and its cleanup.
func (c *Capturer) Run(ctx context.Context, page Page, pageURL, tempDir string) (*CaptureResult, error) {
	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, fmt.Errorf("capture navigation failed: %w", err)
	}
	if err := page.PreparePlayback(ctx, c.cfg.PlaybackRate); err != nil {
		return nil, fmt.Errorf("failed to prepare playback: %w", err)
	}

	st := &captureState{
		seen:  make(map[string]bool),
		start: c.now(),
	}
	st.lastFragmentAt = st.start
	st.lastSeekAt = st.start
	st.lastProgressAt = st.start
	st.deadline = st.start.Add(c.cfg.UnknownTimeout)

	for {
		if err := c.sleep(ctx, pollInterval); err != nil {
			return nil, err
		}

		state, err := page.State(ctx)
		if err != nil {
			// A transient state read failure is treated like stuck playback
			c.logger.WithError(err).Debug("Player state unavailable")
			state = PlayerState{}
		}

		// Duration bookkeeping. A drift beyond the guard means autoplay
		// advanced to the next unit; stop before mixing videos, keeping
		// only pre-jump fragments.
		if state.Duration > 0 {
			if st.knownDuration == 0 {
				c.adoptDuration(st, state.Duration)
			} else if math.Abs(state.Duration-st.knownDuration) > c.cfg.DurationDriftSec {
				c.logger.WarnWithFields("Duration changed mid-capture, stopping", map[string]interface{}{
					"known": st.knownDuration,
					"new":   state.Duration,
				})
				return c.finish(st, true)
			}
		}

		c.drainResponses(page, st, tempDir)

		// Hard safety ceiling
		if len(st.fragments) >= c.cfg.FragmentCeiling {
			c.logger.WithField("fragments", len(st.fragments)).Warn("Fragment ceiling reached")
			return c.finish(st, true)
		}

		// Success: the count estimate alone never stops capture early;
		// live playback position must corroborate near-end.
		if st.estimate > 0 &&
			len(st.fragments) >= int(math.Ceil(c.cfg.SuccessRatio*float64(st.estimate))) &&
			state.Position >= st.knownDuration-15 {
			return c.finish(st, false)
		}

		now := c.now()

		if now.Sub(st.lastProgressAt) >= progressInterval {
			logger.LogCapture(pageURL, len(st.fragments), st.estimate, state.Position, st.knownDuration)
			st.lastProgressAt = now
		}

		// Idle: nothing new for a full cooldown window
		if now.Sub(st.lastFragmentAt) >= time.Duration(c.cfg.IdleCooldown)*time.Second {
			if c.ratio(st) >= c.cfg.IdleStopRatio {
				c.logger.WithField("fragments", len(st.fragments)).Info("Capture idle near completion, stopping")
				return c.finish(st, false)
			}
			// Not close to done: nudge playback and keep waiting
			c.seekForward(ctx, page, st, state.Position+c.cfg.SeekJump)
			st.lastFragmentAt = now
		}

		if done, result, err := c.handleStuck(ctx, page, pageURL, st, state, now); done {
			return result, err
		}

		// Periodic forward seek to accelerate emission
		if st.knownDuration > 0 &&
			now.Sub(st.lastSeekAt) >= time.Duration(c.cfg.SeekInterval)*time.Second {
			c.seekForward(ctx, page, st, state.Position+c.cfg.SeekJump)
		}

		if now.After(st.deadline) {
			c.logger.WithField("fragments", len(st.fragments)).Warn("Capture session timeout")
			if c.ratio(st) >= c.cfg.AcceptRatio {
				return c.finish(st, true)
			}
			return nil, errs.New(errs.ErrorTypeCapture,
				fmt.Sprintf("session timed out with %d of ~%d fragments", len(st.fragments), st.estimate))
		}
	}
}

// adoptDuration records the video duration once and derives the fragment
// estimate and the session deadline from it.
func (c *Capturer) adoptDuration(st *captureState, duration float64) {
	st.knownDuration = duration
	st.estimate = int(duration/c.cfg.FragmentSeconds) + 10

	timeout := time.Duration((duration/4)*3+120) * time.Second
	if timeout < c.cfg.MinTimeout {
		timeout = c.cfg.MinTimeout
	}
	if timeout > c.cfg.MaxTimeout {
		timeout = c.cfg.MaxTimeout
	}
	st.deadline = st.start.Add(timeout)

	c.logger.InfoWithFields("Capture session sized", map[string]interface{}{
		"duration": duration,
		"estimate": st.estimate,
		"timeout":  timeout,
	})
}

// drainResponses pulls every buffered network response and persists new
// fragments, deduplicating by source URL.
func (c *Capturer) drainResponses(page Page, st *captureState, tempDir string) {
	for {
		select {
		case resp, ok := <-page.Responses():
			if !ok {
				return
			}
			c.addFragment(st, resp, tempDir)
		default:
			return
		}
	}
}

func (c *Capturer) addFragment(st *captureState, resp CapturedResponse, tempDir string) {
	if len(resp.Body) == 0 || st.seen[resp.URL] {
		return
	}
	st.seen[resp.URL] = true

	index := len(st.fragments)
	path := filepath.Join(tempDir, fmt.Sprintf("fragment_%05d.ts", index))
	if err := os.WriteFile(path, resp.Body, 0644); err != nil {
		c.logger.WithError(err).Error("Failed to persist fragment")
		return
	}

	seq := parseSequence(resp.URL)
	if seq > st.maxSeq {
		st.maxSeq = seq
	}

	st.fragments = append(st.fragments, Fragment{
		Index:    index,
		Sequence: seq,
		URL:      resp.URL,
		Size:     int64(len(resp.Body)),
		Path:     path,
	})
	st.lastFragmentAt = c.now()
}

// handleStuck runs the graduated recovery ladder when playback position
// stops advancing. Returns done=true when the ladder decided the session
// outcome.
func (c *Capturer) handleStuck(ctx context.Context, page Page, pageURL string, st *captureState, state PlayerState, now time.Time) (bool, *CaptureResult, error) {
	if state.Position > st.lastPosition+0.5 {
		st.lastPosition = state.Position
		st.stuckSince = time.Time{}
		st.aggSeeked = false
		return false, nil, nil
	}
	if st.stuckSince.IsZero() {
		st.stuckSince = now
		return false, nil, nil
	}

	dwell := now.Sub(st.stuckSince)
	switch {
	case dwell >= 90*time.Second && st.reloads >= c.cfg.MaxReloads:
		// Reloads exhausted: accept a partial capture or give up
		if c.ratio(st) >= c.cfg.AcceptRatio {
			c.logger.WithField("ratio", c.ratio(st)).Warn("Accepting partial capture after stuck playback")
			result, err := c.finish(st, true)
			return true, result, err
		}
		return true, nil, errs.New(errs.ErrorTypeCapture,
			fmt.Sprintf("playback stuck with %d of ~%d fragments after %d reloads",
				len(st.fragments), st.estimate, st.reloads))

	case dwell >= 60*time.Second && st.reloads < c.cfg.MaxReloads:
		// Resume from the last confirmed fragment, not wall clock, so
		// already-captured segments are not fetched again.
		resume := math.Max(float64(st.maxSeq)*c.cfg.FragmentSeconds, state.Position)
		c.reload(ctx, page, st, resume)

	case dwell >= 30*time.Second && state.Position < c.cfg.FragmentSeconds && st.reloads < c.cfg.MaxReloads:
		// Never got going: reload from the top
		c.reload(ctx, page, st, 0)

	case dwell >= 30*time.Second && !st.aggSeeked:
		// Mid-video stall: aggressive jump past the bad spot
		c.seekForward(ctx, page, st, state.Position+2*c.cfg.SeekJump)
		st.aggSeeked = true
	}
	return false, nil, nil
}

func (c *Capturer) reload(ctx context.Context, page Page, st *captureState, resume float64) {
	st.reloads++
	c.logger.WithFields(map[string]interface{}{
		"reload": st.reloads,
		"resume": resume,
	}).Warn("Reloading stuck page")

	if err := page.Reload(ctx); err != nil {
		c.logger.WithError(err).Error("Page reload failed")
		return
	}
	if err := page.PreparePlayback(ctx, c.cfg.PlaybackRate); err != nil {
		c.logger.WithError(err).Error("Failed to re-prepare playback")
		return
	}
	if resume > 0 {
		if err := page.Seek(ctx, resume); err != nil {
			c.logger.WithError(err).Error("Resume seek failed")
		}
	}
	st.stuckSince = time.Time{}
	st.aggSeeked = false
	st.lastSeekAt = c.now()
}

// seekForward seeks toward target, capped below the end so the player
// keeps requesting segments instead of finishing outright.
func (c *Capturer) seekForward(ctx context.Context, page Page, st *captureState, target float64) {
	if st.knownDuration > 0 {
		limit := st.knownDuration - 15
		if target > limit {
			target = limit
		}
	}
	if target <= st.lastPosition {
		return
	}
	if err := page.Seek(ctx, target); err != nil {
		c.logger.WithError(err).Debug("Seek failed")
		return
	}
	st.lastSeekAt = c.now()
}

func (c *Capturer) ratio(st *captureState) float64 {
	if st.estimate <= 0 {
		return 0
	}
	return float64(len(st.fragments)) / float64(st.estimate)
}

// finish closes out the session. Zero captured fragments is always a
// terminal failure.
func (c *Capturer) finish(st *captureState, partial bool) (*CaptureResult, error) {
	if len(st.fragments) == 0 {
		return nil, errs.New(errs.ErrorTypeCapture, "no fragments captured")
	}

	c.logger.InfoWithFields("Capture finished", map[string]interface{}{
		"fragments": len(st.fragments),
		"estimate":  st.estimate,
		"partial":   partial,
		"elapsed":   c.now().Sub(st.start),
	})
	return &CaptureResult{
		Fragments: st.fragments,
		Duration:  st.knownDuration,
		Partial:   partial,
	}, nil
}

var sequenceRe = regexp.MustCompile(`(\d+)\.ts(?:\?.*)?$`)

// parseSequence extracts the segment sequence number from a fragment URL
func parseSequence(fragmentURL string) int {
	m := sequenceRe.FindStringSubmatch(fragmentURL)
	if m == nil {
		return 0
	}
	seq, _ := strconv.Atoi(m[1])
	return seq
}
