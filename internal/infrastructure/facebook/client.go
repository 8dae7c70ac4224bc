package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

const (
	defaultGraphURL   = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"
	defaultChunkSize  = 4 * 1024 * 1024
	maxErrorBodySize  = 1024

	// ModeReel publishes through the direct-session reels protocol.
	ModeReel = "reel"
	// ModeVideo publishes through the chunked resumable videos protocol.
	ModeVideo = "video"
)

// Config carries the Page target and upload tuning.
type Config struct {
	GraphURL          string
	APIVersion        string
	PageID            string
	AccessToken       string
	PublishMode       string
	ChunkSize         int64
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	PollInterval      time.Duration
	ProcessingTimeout time.Duration
}

// Client talks to the Graph API on behalf of a single Page.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ ports.Publisher = (*Client)(nil)

// NewClient fills unset tuning values with the Graph API defaults. Uploads
// can take minutes, so the HTTP client carries no overall timeout and every
// call is bounded by its context instead.
func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.PublishMode == "" {
		cfg.PublishMode = ModeReel
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.GraphURL, "/") + "/" + cfg.APIVersion,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Publish uploads the file with the configured protocol.
func (c *Client) Publish(ctx context.Context, path string, content domain.GeneratedContent) (domain.PublishResult, error) {
	switch c.cfg.PublishMode {
	case ModeVideo:
		return c.UploadVideo(ctx, path, content.Title, content.Description)
	case ModeReel:
		return c.UploadReel(ctx, path, content.Description)
	default:
		return domain.PublishResult{}, fmt.Errorf("facebook: unknown publish mode %q", c.cfg.PublishMode)
	}
}

// Identity is the subset of /me returned by ValidateToken.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ValidateToken checks that the access token is accepted by the Graph API.
func (c *Client) ValidateToken(ctx context.Context) (Identity, error) {
	var me Identity
	if err := c.call(ctx, http.MethodGet, c.endpoint("me"), url.Values{"fields": {"id,name"}}, &me); err != nil {
		return Identity{}, fmt.Errorf("facebook: validate token: %w", err)
	}
	return me, nil
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("facebook api: %s (status %d, code %d, type %s)", e.Message, e.StatusCode, e.Code, e.Type)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}

// call sends params as a form body (POST) or query string (GET) and decodes
// the JSON answer into dst.
func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, dst any) error {
	var (
		body        io.Reader
		contentType string
	)
	target := endpoint
	if method == http.MethodGet {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
		Type:       "http",
	}
}

func isTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
