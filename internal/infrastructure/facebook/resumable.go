package facebook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"ReelRelay/internal/domain"
)

// graphOffset accepts offsets encoded either as JSON numbers or strings.
type graphOffset struct {
	value int64
	set   bool
}

func (o *graphOffset) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse offset %q: %w", raw, err)
	}
	o.value, o.set = v, true
	return nil
}

type startResponse struct {
	UploadSessionID string      `json:"upload_session_id"`
	VideoID         string      `json:"video_id"`
	StartOffset     graphOffset `json:"start_offset"`
}

type transferResponse struct {
	StartOffset graphOffset `json:"start_offset"`
	EndOffset   graphOffset `json:"end_offset"`
}

type finishResponse struct {
	Success *bool  `json:"success"`
	VideoID string `json:"video_id"`
}

type statusResponse struct {
	Status struct {
		VideoStatus string `json:"video_status"`
	} `json:"status"`
}

// UploadVideo runs the chunked resumable protocol: start, transfer, finish,
// wait for processing, publish.
func (c *Client) UploadVideo(ctx context.Context, path, title, description string) (domain.PublishResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("facebook: open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("facebook: stat %s: %w", path, err)
	}
	size := info.Size()

	logger := c.logger.With().Str("file", filepath.Base(path)).Logger()
	logger.Info().Str("size", humanize.Bytes(uint64(size))).Msg("starting resumable upload")

	session, err := c.startSession(ctx, size)
	if err != nil {
		return domain.PublishResult{}, err
	}
	logger.Debug().Str("upload_session_id", session.UploadSessionID).Msg("upload session created")

	if err := c.transfer(ctx, file, size, session.UploadSessionID); err != nil {
		return domain.PublishResult{}, err
	}

	mediaID, err := c.finishSession(ctx, session)
	if err != nil {
		return domain.PublishResult{}, err
	}
	logger.Info().Str("media_id", mediaID).Msg("upload finished, waiting for processing")

	if err := c.waitForProcessing(ctx, mediaID); err != nil {
		return domain.PublishResult{}, err
	}

	postID, err := c.publishVideo(ctx, mediaID, title, description)
	if err != nil {
		return domain.PublishResult{}, err
	}
	logger.Info().Str("media_id", mediaID).Str("post_id", postID).Msg("video published")

	return domain.PublishResult{
		RemoteID: mediaID,
		PostID:   postID,
		URL:      fmt.Sprintf("https://www.facebook.com/%s/videos/%s", c.cfg.PageID, mediaID),
	}, nil
}

func (c *Client) startSession(ctx context.Context, size int64) (startResponse, error) {
	var resp startResponse
	err := c.call(ctx, http.MethodPost, c.endpoint(c.cfg.PageID, "videos"), url.Values{
		"upload_phase": {"start"},
		"file_size":    {strconv.FormatInt(size, 10)},
	}, &resp)
	if err != nil {
		return startResponse{}, fmt.Errorf("facebook: start upload: %w", err)
	}
	if resp.UploadSessionID == "" {
		return startResponse{}, fmt.Errorf("facebook: start upload: response carried no upload_session_id")
	}
	return resp, nil
}

// transfer sends the file chunk by chunk. The offset of every chunk after the
// first is the one confirmed by the server, not local arithmetic, even when
// it rewinds or stays put. Rounds that do not move past the highest offset
// confirmed so far are charged to the per-chunk attempt budget.
func (c *Client) transfer(ctx context.Context, file io.ReaderAt, size int64, sessionID string) error {
	var (
		offset    int64
		confirmed int64
		stalls    int
	)
	for offset < size {
		length := c.cfg.ChunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		chunk := make([]byte, length)
		if _, err := file.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return fmt.Errorf("facebook: read chunk at %d: %w", offset, err)
		}

		next, err := c.transferWithRetry(ctx, sessionID, offset, chunk)
		if err != nil {
			return err
		}
		next = max(0, min(next, size))

		if next <= confirmed {
			stalls++
			c.logger.Warn().Int64("offset", offset).Int64("server_offset", next).Int("stalls", stalls).
				Msg("server offset did not advance, resending from it")
			if stalls >= c.cfg.MaxAttempts {
				return &domain.TransferError{
					Offset:   offset,
					Attempts: stalls,
					Err:      fmt.Errorf("server offset stuck at %d", next),
				}
			}
		} else {
			confirmed, stalls = next, 0
		}

		c.logger.Debug().Int64("offset", next).Int64("size", size).Msg("chunk uploaded")
		offset = next
	}
	return nil
}

func (c *Client) transferWithRetry(ctx context.Context, sessionID string, offset int64, chunk []byte) (int64, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	var (
		next     int64
		attempts int
	)
	operation := func() error {
		attempts++
		confirmed, err := c.transferChunk(ctx, sessionID, offset, chunk)
		if err != nil {
			if !isTemporary(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		next = confirmed
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int64("offset", offset).Int("attempt", attempts).
			Dur("retry_in", wait).Msg("chunk transfer failed, retrying")
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, retryPolicy, notify); err != nil {
		return 0, &domain.TransferError{Offset: offset, Attempts: attempts, Err: err}
	}
	return next, nil
}

func (c *Client) transferChunk(ctx context.Context, sessionID string, offset int64, chunk []byte) (int64, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := [][2]string{
		{"upload_phase", "transfer"},
		{"upload_session_id", sessionID},
		{"start_offset", strconv.FormatInt(offset, 10)},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return 0, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	part, err := form.CreateFormFile("video_file_chunk", "video.mp4")
	if err != nil {
		return 0, fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return 0, fmt.Errorf("write chunk part: %w", err)
	}
	if err := form.Close(); err != nil {
		return 0, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.PageID, "videos"), &body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp transferResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	if !resp.StartOffset.set {
		return offset + int64(len(chunk)), nil
	}
	return resp.StartOffset.value, nil
}

func (c *Client) finishSession(ctx context.Context, session startResponse) (string, error) {
	var resp finishResponse
	err := c.call(ctx, http.MethodPost, c.endpoint(c.cfg.PageID, "videos"), url.Values{
		"upload_phase":      {"finish"},
		"upload_session_id": {session.UploadSessionID},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("facebook: finish upload: %w", err)
	}

	mediaID := resp.VideoID
	if mediaID == "" {
		mediaID = session.VideoID
	}
	if resp.Success != nil && !*resp.Success {
		return "", &domain.PublishRejectedError{MediaID: mediaID, Phase: "finish"}
	}
	if mediaID == "" {
		return "", fmt.Errorf("facebook: finish upload: no video id in start or finish response")
	}
	return mediaID, nil
}

// waitForProcessing polls on a fixed interval until the video is ready,
// reported as failed, or the processing budget is spent.
func (c *Client) waitForProcessing(ctx context.Context, mediaID string) error {
	deadline := time.Now().Add(c.cfg.ProcessingTimeout)
	var lastStatus string

	for {
		var resp statusResponse
		err := c.call(ctx, http.MethodGet, c.endpoint(mediaID), url.Values{"fields": {"status"}}, &resp)
		if err != nil {
			return fmt.Errorf("facebook: poll status of %s: %w", mediaID, err)
		}

		lastStatus = resp.Status.VideoStatus
		switch lastStatus {
		case "ready":
			return nil
		case "error":
			return &domain.ProcessingError{MediaID: mediaID, Status: lastStatus}
		}
		c.logger.Debug().Str("media_id", mediaID).Str("status", lastStatus).Msg("video still processing")

		if !time.Now().Add(c.cfg.PollInterval).Before(deadline) {
			return &domain.ProcessingError{MediaID: mediaID, Status: lastStatus, TimedOut: true}
		}

		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) publishVideo(ctx context.Context, mediaID, title, description string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.call(ctx, http.MethodPost, c.endpoint(mediaID), url.Values{
		"title":       {title},
		"description": {description},
		"published":   {"true"},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("facebook: publish %s: %w", mediaID, err)
	}
	if resp.ID == "" {
		return mediaID, nil
	}
	return resp.ID, nil
}
