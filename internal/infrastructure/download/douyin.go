package download

import (
	"context"
	"net/http"
	"net/url"

	"ReelRelay/internal/resolver"
)

const douyinEndpoint = "https://api.douyin.wtf/api"

// Douyin resolves through the douyin.wtf public API.
type Douyin struct {
	client   *http.Client
	endpoint string
}

var _ resolver.Resolver = (*Douyin)(nil)

// NewDouyin wires an HTTP client; an empty endpoint uses the public API.
func NewDouyin(client *http.Client, endpoint string) *Douyin {
	if endpoint == "" {
		endpoint = douyinEndpoint
	}
	return &Douyin{client: defaultClient(client, 0), endpoint: endpoint}
}

// Name identifies the resolver inside the registry.
func (d *Douyin) Name() string { return "douyin" }

// Resolve returns the no-watermark URL reported by the API.
func (d *Douyin) Resolve(ctx context.Context, sourceURL string) (string, error) {
	resp, err := get(ctx, d.client, d.endpoint+"?url="+url.QueryEscape(sourceURL))
	if err != nil {
		return "", err
	}

	var payload struct {
		NoWatermarkURL string `json:"nwm_video_url"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return "", err
	}
	return payload.NoWatermarkURL, nil
}
