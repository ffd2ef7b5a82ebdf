// Package media resolves a unit's playable MP4 through a cascade of
// acquisition strategies: direct manifest download, fallback manifest,
// and browser network-interception capture when the origin rejects
// direct fetches.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"coursevault/pkg/config"
	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
	"coursevault/pkg/models"
)

// Pipeline turns a unit's video sources into a local MP4
type Pipeline struct {
	fetcher  Fetcher
	muxer    Remuxer
	capturer *Capturer
	page     Page // nil when no browser session is available
	cfg      *config.Config
	hls      *hlsDownloader
	logger   logger.Logger
}

// NewPipeline assembles the acquisition cascade. page may be nil; the
// interception fallback then reports itself unavailable.
func NewPipeline(fetcher Fetcher, muxer Remuxer, capturer *Capturer, page Page, cfg *config.Config, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{
		fetcher:  fetcher,
		muxer:    muxer,
		capturer: capturer,
		page:     page,
		cfg:      cfg,
		hls: &hlsDownloader{
			fetcher: fetcher,
			quality: cfg.Download.Quality,
			logger:  log.WithField("component", "hls"),
		},
		logger: log.WithField("component", "pipeline"),
	}
}

// FetchVideo produces outputPath for the unit's video. Success is
// reported only when a non-trivial output file exists; every intermediate
// failure is logged with its strategy before one failure surfaces.
func (p *Pipeline) FetchVideo(ctx context.Context, unit *models.Unit, outputPath string) error {
	if !unit.HasVideo() {
		return errs.New(errs.ErrorTypeManifest, "unit carries no video")
	}

	var lastErr error
	sawForbidden := false
	for _, attempt := range []struct {
		strategy string
		manifest string
	}{
		{"direct", unit.Video.ManifestURL},
		{"fallback", unit.Video.FallbackURL},
	} {
		if attempt.manifest == "" {
			continue
		}

		err := p.downloadManifest(ctx, attempt.manifest, outputPath)
		if err == nil {
			p.logger.WithFields(map[string]interface{}{
				"unit_id":  unit.ID,
				"strategy": attempt.strategy,
			}).Info("Video acquired")
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		p.logger.WithFields(map[string]interface{}{
			"unit_id":  unit.ID,
			"strategy": attempt.strategy,
			"manifest": attempt.manifest,
		}).WithError(err).Warn("Acquisition strategy failed")
		lastErr = err
		if isForbidden(err) {
			sawForbidden = true
		}
	}

	if lastErr == nil {
		return errs.New(errs.ErrorTypeManifest, "unit has no manifest URL")
	}

	// A Forbidden-class failure means the origin blocks our client but
	// will serve the browser; escalate to interception capture. Any
	// attempt hitting a 403 triggers this, even when a later fallback
	// failed differently and its error is the one left in hand.
	if sawForbidden {
		err := p.captureFromPage(ctx, unit, outputPath)
		if err == nil {
			p.logger.WithFields(map[string]interface{}{
				"unit_id":  unit.ID,
				"strategy": "capture",
			}).Info("Video acquired")
			return nil
		}
		p.logger.WithFields(map[string]interface{}{
			"unit_id":  unit.ID,
			"strategy": "capture",
		}).WithError(err).Error("Interception capture failed")
		return err
	}

	return lastErr
}

// downloadManifest routes a manifest to the matching direct strategy
func (p *Pipeline) downloadManifest(ctx context.Context, manifestURL, outputPath string) error {
	switch manifestFormat(manifestURL) {
	case "hls":
		return p.downloadHLS(ctx, manifestURL, outputPath)
	case "dash":
		if err := p.muxer.RemuxManifest(ctx, manifestURL, outputPath); err != nil {
			return err
		}
		return p.validateOutput(outputPath)
	default:
		return errs.New(errs.ErrorTypeManifest, fmt.Sprintf("unrecognized manifest format: %s", manifestURL))
	}
}

func (p *Pipeline) downloadHLS(ctx context.Context, manifestURL, outputPath string) error {
	tempDir, err := os.MkdirTemp("", "coursevault-hls-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	segments, _, err := p.hls.Download(ctx, manifestURL, tempDir)
	if err != nil {
		return err
	}
	if err := p.muxer.ConcatSegments(ctx, segments, outputPath); err != nil {
		return err
	}
	return p.validateOutput(outputPath)
}

// captureFromPage runs the interception capture and reassembles the
// fragments in local capture order. Temp state is removed on every exit.
func (p *Pipeline) captureFromPage(ctx context.Context, unit *models.Unit, outputPath string) error {
	if p.page == nil || p.capturer == nil {
		return errs.New(errs.ErrorTypeCapture, "no browser session available for capture")
	}

	tempDir, err := os.MkdirTemp("", "coursevault-capture-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	result, err := p.capturer.Run(ctx, p.page, unit.URL, tempDir)
	if err != nil {
		return err
	}

	// Capture order, not parsed sequence, is authoritative
	paths := make([]string, len(result.Fragments))
	for i, frag := range result.Fragments {
		paths[i] = frag.Path
	}
	if err := p.muxer.ConcatSegments(ctx, paths, outputPath); err != nil {
		return err
	}
	return p.validateOutput(outputPath)
}

// validateOutput enforces the pipeline's success guarantee: the output
// exists and is not implausibly small.
func (p *Pipeline) validateOutput(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return errs.New(errs.ErrorTypeMux, fmt.Sprintf("output file missing: %v", err))
	}
	if info.Size() < p.cfg.Download.MinOutputBytes {
		os.Remove(outputPath)
		return errs.New(errs.ErrorTypeMux,
			fmt.Sprintf("output implausibly small: %d bytes", info.Size()))
	}
	return nil
}

// manifestFormat classifies a manifest URL as HLS or DASH
func manifestFormat(manifestURL string) string {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return ""
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u8":
		return "hls"
	case ".mpd":
		return "dash"
	}
	return ""
}

// isForbidden reports whether err carries a Forbidden-class HTTP failure
func isForbidden(err error) bool {
	var typedErr *errs.Error
	return errors.As(err, &typedErr) && typedErr.Type == errs.ErrorTypeForbidden
}
