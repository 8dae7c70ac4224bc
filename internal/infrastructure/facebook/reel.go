package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"ReelRelay/internal/domain"
)

type reelStartResponse struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
}

// UploadReel runs the direct-session protocol: start a reel session, send
// the whole file to the pre-signed upload URL, then finish with
// video_state=PUBLISHED. The bulk transfer is not retried.
func (c *Client) UploadReel(ctx context.Context, path, description string) (domain.PublishResult, error) {
	logger := c.logger.With().Str("file", filepath.Base(path)).Logger()

	var session reelStartResponse
	err := c.call(ctx, http.MethodPost, c.endpoint(c.cfg.PageID, "video_reels"), url.Values{
		"upload_phase": {"start"},
	}, &session)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("facebook: start reel: %w", err)
	}
	if session.VideoID == "" || session.UploadURL == "" {
		return domain.PublishResult{}, fmt.Errorf("facebook: start reel: response missing video_id or upload_url")
	}
	logger.Debug().Str("media_id", session.VideoID).Msg("reel session created")

	if err := c.sendReelFile(ctx, session, path); err != nil {
		return domain.PublishResult{}, err
	}

	var finish struct {
		Success bool `json:"success"`
	}
	err = c.call(ctx, http.MethodPost, c.endpoint(c.cfg.PageID, "video_reels"), url.Values{
		"upload_phase": {"finish"},
		"video_id":     {session.VideoID},
		"video_state":  {"PUBLISHED"},
		"description":  {description},
	}, &finish)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("facebook: finish reel %s: %w", session.VideoID, err)
	}
	if !finish.Success {
		return domain.PublishResult{}, &domain.PublishRejectedError{MediaID: session.VideoID, Phase: "reel finish"}
	}

	logger.Info().Str("media_id", session.VideoID).Msg("reel published")
	return domain.PublishResult{
		RemoteID: session.VideoID,
		PostID:   session.VideoID,
		URL:      "https://www.facebook.com/reel/" + session.VideoID,
	}, nil
}

func (c *Client) sendReelFile(ctx context.Context, session reelStartResponse, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("facebook: open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("facebook: stat %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.UploadURL, file)
	if err != nil {
		return fmt.Errorf("facebook: build reel transfer: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "OAuth "+c.cfg.AccessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(info.Size(), 10))
	req.Header.Set("Content-Type", "application/octet-stream")

	c.logger.Debug().Str("media_id", session.VideoID).Str("size", humanize.Bytes(uint64(info.Size()))).
		Msg("sending reel file")

	if err := c.do(req, nil); err != nil {
		return &domain.TransferError{Offset: 0, Attempts: 1, Err: err}
	}
	return nil
}
