// Package browser adapts a Chrome DevTools session to the capture loop's
// page interface. It owns the one authenticated browser context a session
// is allowed, loads the saved login cookies into it, and exposes pages
// with a network-response listener attached.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdpstorage "github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"coursevault/pkg/config"
	"coursevault/pkg/logger"
)

// Session is one running browser with an authenticated profile
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
	cfg     *config.Config
	logger  logger.Logger

	cookieNames []string
	authOnce    sync.Once
}

// NewSession launches the browser, enables network event delivery and
// loads the session cookies from the configured cookie file.
func NewSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "browser")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Site.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.UserAgent(cfg.Site.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
		cfg:     cfg,
		logger:  log,
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	if cfg.Site.CookieFile != "" {
		if err := s.loadCookies(cfg.Site.CookieFile); err != nil {
			s.Close()
			return nil, err
		}
	}

	log.Info("Browser session started")
	return s, nil
}

// Close shuts the browser down
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// NewPage returns the session's page with the fragment listener attached.
// The automation surface exposes one active page context at a time.
func (s *Session) NewPage() *Page {
	return newPage(s.ctx, s.cfg, s.logger, s.validateAuth)
}

// validateAuth checks that the login cookies installed at startup are
// still present in the browser. It runs at most once per session, lazily
// on the first page navigation; a failed check degrades the session to
// unauthenticated with a warning instead of aborting it.
func (s *Session) validateAuth(ctx context.Context) {
	s.authOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			return
		}
		if len(s.cookieNames) == 0 {
			s.logger.Warn("No login cookies loaded, session runs unauthenticated")
			return
		}

		var current []*network.Cookie
		err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			current, err = cdpstorage.GetCookies().Do(ctx)
			return err
		}))
		if err != nil {
			s.logger.WithError(err).Warn("Session validation failed, continuing anyway")
			return
		}

		if missing := missingCookieNames(s.cookieNames, current); len(missing) > 0 {
			s.logger.WithField("missing", missing).Warn("Login cookies no longer present, session may be logged out")
			return
		}
		s.logger.WithField("cookies", len(s.cookieNames)).Info("Session validated")
	})
}

// missingCookieNames reports which of the loaded login cookies are absent
// from the browser's current cookie set.
func missingCookieNames(loaded []string, current []*network.Cookie) []string {
	present := make(map[string]bool, len(current))
	for _, c := range current {
		present[c.Name] = true
	}
	var missing []string
	for _, name := range loaded {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// storedCookie is the cookie file's record shape
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// loadCookies installs the saved login cookies into the browser. A
// missing cookie file is not an error; the session just runs
// unauthenticated.
func (s *Session) loadCookies(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("path", path).Warn("Cookie file not found, session is unauthenticated")
			return nil
		}
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []storedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}

	err = chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(epochTime(c.Expires))
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
			s.cookieNames = append(s.cookieNames, c.Name)
		}
		return nil
	}))
	if err != nil {
		return err
	}

	s.logger.WithField("cookies", len(cookies)).Debug("Session cookies loaded")
	return nil
}

func epochTime(sec float64) time.Time {
	return time.Unix(int64(sec), 0)
}
