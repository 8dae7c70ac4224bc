package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
	"ReelRelay/internal/resolver"
)

const defaultMinFileSize = 1000

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ChainConfig tunes where and how resolved media is stored.
type ChainConfig struct {
	Dir             string
	MinFileSize     int64
	DownloadTimeout time.Duration
	Client          *http.Client
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Chain tries resolvers in priority order and streams the first hit to disk.
type Chain struct {
	resolvers   []resolver.Resolver
	dir         string
	minFileSize int64
	client      *http.Client
	logger      zerolog.Logger
	now         func() time.Time
}

var _ ports.Acquirer = (*Chain)(nil)

// NewChain builds an acquisition chain over an explicit resolver order.
func NewChain(resolvers []resolver.Resolver, cfg ChainConfig) *Chain {
	minSize := cfg.MinFileSize
	if minSize <= 0 {
		minSize = defaultMinFileSize
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Chain{
		resolvers:   resolvers,
		dir:         cfg.Dir,
		minFileSize: minSize,
		client:      client,
		logger:      cfg.Logger,
		now:         now,
	}
}

// NewChainFromRegistry resolves names against the registry in the given order.
func NewChainFromRegistry(reg *resolver.Registry, names []string, cfg ChainConfig) (*Chain, error) {
	ordered, err := reg.Ordered(names)
	if err != nil {
		return nil, err
	}
	return NewChain(ordered, cfg), nil
}

// Acquire returns the path of a verified local copy of the media behind
// sourceURL. It fails only when no resolver yields a usable URL or the
// downloaded file does not pass verification.
func (c *Chain) Acquire(ctx context.Context, sourceURL, videoID string) (string, error) {
	mediaURL, err := c.resolve(ctx, sourceURL, videoID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", &domain.AcquisitionError{VideoID: videoID, Reason: "create download dir", Err: err}
	}

	path := filepath.Join(c.dir, c.filename(videoID))
	size, err := c.stream(ctx, mediaURL, path)
	if err != nil {
		_ = os.Remove(path)
		return "", &domain.AcquisitionError{VideoID: videoID, Reason: "download failed", Err: err}
	}

	if err := c.verify(path, size); err != nil {
		_ = os.Remove(path)
		return "", &domain.AcquisitionError{VideoID: videoID, Reason: "invalid media file", Err: err}
	}

	c.logger.Info().
		Str("video_id", videoID).
		Str("path", path).
		Str("size", humanize.Bytes(uint64(size))).
		Msg("video downloaded")
	return path, nil
}

func (c *Chain) resolve(ctx context.Context, sourceURL, videoID string) (string, error) {
	var failures *multierror.Error
	for _, r := range c.resolvers {
		if err := ctx.Err(); err != nil {
			failures = multierror.Append(failures, err)
			break
		}

		mediaURL, err := r.Resolve(ctx, sourceURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("video_id", videoID).Str("resolver", r.Name()).
				Msg("resolver failed, trying next")
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		if mediaURL == "" {
			c.logger.Debug().Str("video_id", videoID).Str("resolver", r.Name()).Msg("resolver returned no url")
			failures = multierror.Append(failures, fmt.Errorf("%s: no media url", r.Name()))
			continue
		}

		c.logger.Debug().Str("video_id", videoID).Str("resolver", r.Name()).Msg("media url resolved")
		return mediaURL, nil
	}

	return "", &domain.AcquisitionError{
		VideoID: videoID,
		Reason:  "all resolvers failed",
		Err:     failures.ErrorOrNil(),
	}
}

func (c *Chain) stream(ctx context.Context, mediaURL, path string) (int64, error) {
	resp, err := get(ctx, c.client, mediaURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	size, copyErr := io.Copy(file, resp.Body)
	syncErr := file.Sync()
	closeErr := file.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		return size, fmt.Errorf("write file: %w", err)
	}
	return size, nil
}

func (c *Chain) verify(path string, size int64) error {
	if size < c.minFileSize {
		return fmt.Errorf("file is %s, below minimum %s", humanize.Bytes(uint64(size)), humanize.Bytes(uint64(c.minFileSize)))
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	if mtype.Is("text/html") || mtype.Is("application/json") {
		return fmt.Errorf("placeholder %s payload instead of media", mtype.String())
	}
	return nil
}

func (c *Chain) filename(videoID string) string {
	safe := unsafeNameChars.ReplaceAllString(videoID, "_")
	return fmt.Sprintf("video_%s_%d.mp4", safe, c.now().UnixMilli())
}
