// Package downloader provides the session's HTTP fetch path: one
// rate-limited client used for manifests, segments, subtitles and
// resource files. Downloads are strictly sequential; the content host
// throttles concurrent scraping, so there is no worker fan-out here.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
	"coursevault/pkg/ratelimit"
	"coursevault/pkg/retry"
	"coursevault/pkg/storage"
)

// Fetcher downloads URLs with rate limiting, typed HTTP errors and
// error-type aware retries.
type Fetcher struct {
	client    *http.Client
	limiter   ratelimit.Limiter
	retrier   *retry.HTTPRetrier
	userAgent string
	referer   string
	logger    logger.Logger
}

// New creates a fetcher from the download and rate limit configuration
func New(cfg *config.Config, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Download.DownloadTimeout,
		},
		limiter:   ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		retrier:   retry.NewHTTPRetrier(cfg.Download.RetryAttempts, log),
		userAgent: cfg.Site.UserAgent,
		referer:   cfg.Site.BaseURL,
		logger:    log.WithField("component", "downloader"),
	}
}

// Fetch retrieves url and returns the response body. Non-2xx responses
// surface as typed errors, so a 403 reaches the caller as a
// forbidden-class failure it can escalate on.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := f.retrier.WithContext(ctx).DoWithErrorType(func() error {
		data, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Download streams url into destPath, writing through a temp file so an
// interrupted transfer never leaves a partial file at the destination.
func (f *Fetcher) Download(ctx context.Context, url, destPath string) error {
	return f.retrier.WithContext(ctx).DoWithErrorType(func() error {
		return f.downloadOnce(ctx, url, destPath)
	})
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("reading body of %s: %v", url, err))
	}
	return body, nil
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, destPath string) error {
	resp, err := f.do(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := storage.SaveFile(resp.Body, destPath); err != nil {
		return errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("streaming %s: %v", url, err))
	}
	f.logger.WithField("path", destPath).Debug("Download saved")
	return nil
}

// do performs one rate-limited request and classifies the response
func (f *Fetcher) do(ctx context.Context, url string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.New(errs.ErrorTypeNetwork, fmt.Sprintf("request to %s failed: %v", url, err))
	}

	logger.LogRequest(http.MethodGet, url, resp.StatusCode, float64(time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			logger.LogRateLimit(url, time.Duration(secs)*time.Second)
		}
		return nil, errs.NewHTTP(resp.StatusCode, fmt.Sprintf("GET %s returned %s", url, resp.Status))
	}
	return resp, nil
}
