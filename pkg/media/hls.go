package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/grafov/m3u8"

	errs "coursevault/pkg/errors"
	"coursevault/pkg/logger"
)

// hlsDownloader fetches an HLS playlist and pulls its segments down
// sequentially for a later lossless concat.
type hlsDownloader struct {
	fetcher Fetcher
	quality string
	logger  logger.Logger
}

// Download resolves manifestURL (master or media playlist), downloads
// every segment into tempDir and returns the segment paths in playlist
// order, plus the total media duration.
func (h *hlsDownloader) Download(ctx context.Context, manifestURL, tempDir string) ([]string, float64, error) {
	mediaURL, playlist, err := h.resolveMediaPlaylist(ctx, manifestURL)
	if err != nil {
		return nil, 0, err
	}

	base, err := url.Parse(mediaURL)
	if err != nil {
		return nil, 0, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("invalid playlist URL %s: %v", mediaURL, err))
	}

	var (
		paths    []string
		duration float64
	)
	for i, segment := range playlist.Segments {
		if segment == nil {
			continue
		}
		if segment.Key != nil && segment.Key.URI != "" {
			return nil, 0, errs.New(errs.ErrorTypeManifest, "encrypted playlist not supported by direct download")
		}

		segURL, err := resolveURL(base, segment.URI)
		if err != nil {
			return nil, 0, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("bad segment URI %s: %v", segment.URI, err))
		}

		dest := filepath.Join(tempDir, fmt.Sprintf("seg_%05d.ts", i))
		if err := h.fetcher.Download(ctx, segURL, dest); err != nil {
			return nil, 0, fmt.Errorf("segment %d of %d: %w", i+1, len(playlist.Segments), err)
		}
		paths = append(paths, dest)
		duration += segment.Duration
	}

	if len(paths) == 0 {
		return nil, 0, errs.New(errs.ErrorTypeManifest, "playlist contains no segments")
	}

	h.logger.InfoWithFields("HLS segments downloaded", map[string]interface{}{
		"segments": len(paths),
		"duration": duration,
	})
	return paths, duration, nil
}

// resolveMediaPlaylist fetches manifestURL and, when it is a master
// playlist, follows the variant chosen by the quality setting.
func (h *hlsDownloader) resolveMediaPlaylist(ctx context.Context, manifestURL string) (string, *m3u8.MediaPlaylist, error) {
	data, err := h.fetcher.Fetch(ctx, manifestURL)
	if err != nil {
		return "", nil, err
	}

	playlist, listType, err := m3u8.Decode(*bytes.NewBuffer(data), true)
	if err != nil {
		return "", nil, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("unparsable playlist %s: %v", manifestURL, err))
	}

	switch listType {
	case m3u8.MEDIA:
		return manifestURL, playlist.(*m3u8.MediaPlaylist), nil

	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		variantURI, err := h.pickVariant(master)
		if err != nil {
			return "", nil, err
		}

		base, err := url.Parse(manifestURL)
		if err != nil {
			return "", nil, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("invalid manifest URL %s: %v", manifestURL, err))
		}
		mediaURL, err := resolveURL(base, variantURI)
		if err != nil {
			return "", nil, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("bad variant URI %s: %v", variantURI, err))
		}

		mediaData, err := h.fetcher.Fetch(ctx, mediaURL)
		if err != nil {
			return "", nil, err
		}
		mediaList, mediaType, err := m3u8.Decode(*bytes.NewBuffer(mediaData), true)
		if err != nil || mediaType != m3u8.MEDIA {
			return "", nil, errs.New(errs.ErrorTypeManifest, fmt.Sprintf("variant %s is not a media playlist", mediaURL))
		}
		return mediaURL, mediaList.(*m3u8.MediaPlaylist), nil

	default:
		return "", nil, errs.New(errs.ErrorTypeManifest, "unknown playlist type")
	}
}

// pickVariant selects a variant stream by the configured quality:
// "best" and "worst" select by bandwidth, anything else matches the
// variant resolution height (e.g. "720").
func (h *hlsDownloader) pickVariant(master *m3u8.MasterPlaylist) (string, error) {
	var variants []*m3u8.Variant
	for _, v := range master.Variants {
		if v != nil && v.URI != "" {
			variants = append(variants, v)
		}
	}
	if len(variants) == 0 {
		return "", errs.New(errs.ErrorTypeManifest, "master playlist has no variants")
	}

	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Bandwidth < variants[j].Bandwidth
	})

	switch h.quality {
	case "", "best":
		return variants[len(variants)-1].URI, nil
	case "worst":
		return variants[0].URI, nil
	default:
		for _, v := range variants {
			if strconv.Itoa(int(variantHeight(v))) == h.quality {
				return v.URI, nil
			}
		}
		// No exact match, fall back to best
		return variants[len(variants)-1].URI, nil
	}
}

var resolutionRe = regexp.MustCompile(`^\d+x(\d+)$`)

func variantHeight(v *m3u8.Variant) int64 {
	m := resolutionRe.FindStringSubmatch(v.Resolution)
	if m == nil {
		return 0
	}
	height, _ := strconv.ParseInt(m[1], 10, 64)
	return height
}

// resolveURL resolves a possibly relative playlist URI against base
func resolveURL(base *url.URL, uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
