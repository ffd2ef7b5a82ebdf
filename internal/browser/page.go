package browser

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"coursevault/pkg/config"
	"coursevault/pkg/logger"
	"coursevault/pkg/media"
)

// responseBuffer bounds the fragment channel; the capture loop drains it
// every poll tick, so it only needs to absorb one tick's burst.
const responseBuffer = 256

// Page drives the browser tab that plays course videos. It implements
// media.Page: navigation, playback control, player state reads and the
// intercepted fragment stream.
type Page struct {
	ctx        context.Context
	cfg        *config.Config
	logger     logger.Logger
	responses  chan media.CapturedResponse
	currentURL string
	validate   func(context.Context)

	mu      sync.Mutex
	pending map[network.RequestID]string
}

func newPage(ctx context.Context, cfg *config.Config, log logger.Logger, validate func(context.Context)) *Page {
	p := &Page{
		ctx:       ctx,
		cfg:       cfg,
		logger:    log.WithField("component", "page"),
		responses: make(chan media.CapturedResponse, responseBuffer),
		pending:   make(map[network.RequestID]string),
		validate:  validate,
	}
	p.listen()
	return p
}

// listen attaches the network listener. Fragment URLs are remembered on
// response-received and their bodies pulled once loading finishes; the
// body read runs off the event handler because the handler must not
// block the event loop.
func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !isFragmentURL(e.Response.URL) {
				return
			}
			p.mu.Lock()
			p.pending[e.RequestID] = e.Response.URL
			p.mu.Unlock()

		case *network.EventLoadingFinished:
			p.mu.Lock()
			fragURL, ok := p.pending[e.RequestID]
			delete(p.pending, e.RequestID)
			p.mu.Unlock()
			if !ok {
				return
			}
			go p.fetchBody(e.RequestID, fragURL)
		}
	})
}

func (p *Page) fetchBody(id network.RequestID, fragURL string) {
	c := chromedp.FromContext(p.ctx)
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.ctx, c.Target))
	if err != nil {
		p.logger.WithField("url", fragURL).WithError(err).Debug("Fragment body unavailable")
		return
	}

	select {
	case p.responses <- media.CapturedResponse{URL: fragURL, Body: body}:
	default:
		// The capture loop fell behind a full buffer; dropping is safe,
		// the seek logic re-requests anything the player still needs.
		p.logger.WithField("url", fragURL).Warn("Fragment dropped, response buffer full")
	}
}

// Navigate opens pageURL and waits for the video element to exist
func (p *Page) Navigate(ctx context.Context, pageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.cfg.Download.NavTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("video", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", pageURL, err)
	}
	p.currentURL = pageURL

	// The session checks its login state lazily, on the first page it
	// actually opens.
	if p.validate != nil {
		p.validate(ctx)
	}
	return nil
}

// Reload reloads the current page and waits for the player again
func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.cfg.Download.NavTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Reload(),
		chromedp.WaitReady("video", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("page reload failed: %w", err)
	}
	return nil
}

// PreparePlayback mutes the player, sets the playback rate and starts
// playing.
func (p *Page) PreparePlayback(ctx context.Context, rate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const v = document.querySelector('video');
		if (!v) return false;
		v.muted = true;
		v.playbackRate = %g;
		v.play();
		return true;
	})()`, rate)

	var ok bool
	if err := p.evaluate(script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no video element on page")
	}
	return nil
}

// Seek jumps the video element to the given position in seconds
func (p *Page) Seek(ctx context.Context, position float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const v = document.querySelector('video');
		if (v) v.currentTime = %g;
		return true;
	})()`, position)

	var ok bool
	return p.evaluate(script, &ok)
}

// State reads the player's current position and duration. A video whose
// duration the player does not know yet reports duration 0.
func (p *Page) State(ctx context.Context) (media.PlayerState, error) {
	if err := ctx.Err(); err != nil {
		return media.PlayerState{}, err
	}
	const script = `(() => {
		const v = document.querySelector('video');
		if (!v) return {position: 0, duration: 0, ready: false};
		return {
			position: v.currentTime,
			duration: isFinite(v.duration) ? v.duration : 0,
			ready: v.readyState >= 2,
		};
	})()`

	var state struct {
		Position float64 `json:"position"`
		Duration float64 `json:"duration"`
		Ready    bool    `json:"ready"`
	}
	if err := p.evaluate(script, &state); err != nil {
		return media.PlayerState{}, err
	}
	return media.PlayerState{
		Position: state.Position,
		Duration: state.Duration,
		Ready:    state.Ready,
	}, nil
}

// Responses feeds intercepted fragment bodies to the capture loop
func (p *Page) Responses() <-chan media.CapturedResponse {
	return p.responses
}

func (p *Page) evaluate(script string, out interface{}) error {
	runCtx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// isFragmentURL matches transport-stream segment requests
func isFragmentURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".ts")
}
