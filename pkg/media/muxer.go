package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
)

// Muxer shells out to ffmpeg for lossless remuxing. It is a black box:
// inputs in, playable MP4 out, no re-encoding.
type Muxer struct {
	ffmpegPath string
	userAgent  string
	referer    string
	logger     logger.Logger
}

// NewMuxer creates a muxer using the given ffmpeg binary
func NewMuxer(ffmpegPath, userAgent, referer string, log logger.Logger) *Muxer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Muxer{
		ffmpegPath: ffmpegPath,
		userAgent:  userAgent,
		referer:    referer,
		logger:     log.WithField("component", "muxer"),
	}
}

// ConcatSegments concatenates transport-stream segments in the given
// order and remuxes them into outputPath. Order is the caller's concern;
// for interception captures it is the local capture order.
func (m *Muxer) ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return errs.New(errs.ErrorTypeMux, "no segments to concatenate")
	}

	listPath := filepath.Join(filepath.Dir(segmentPaths[0]), "concat.txt")
	var list strings.Builder
	for _, p := range segmentPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve segment path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
	return m.run(ctx, args)
}

// RemuxManifest hands a manifest URL straight to ffmpeg and remuxes the
// streams into outputPath. This is the DASH path: ffmpeg fetches the
// representation itself, with the browser-equivalent headers the origin
// expects.
func (m *Muxer) RemuxManifest(ctx context.Context, manifestURL, outputPath string) error {
	args := []string{"-y"}
	if m.userAgent != "" {
		args = append(args, "-user_agent", m.userAgent)
	}
	if m.referer != "" {
		args = append(args, "-headers", fmt.Sprintf("Referer: %s\r\n", m.referer))
	}
	args = append(args,
		"-i", manifestURL,
		"-c", "copy",
		outputPath,
	)
	return m.run(ctx, args)
}

func (m *Muxer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	m.logger.WithField("args", strings.Join(args, " ")).Debug("Running ffmpeg")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.ErrorTypeMux, fmt.Sprintf("ffmpeg failed: %v: %s", err, stderrTail(stderr.String())))
	}
	return nil
}

// stderrTail keeps the last few lines of ffmpeg output, where the actual
// error lives.
func stderrTail(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
