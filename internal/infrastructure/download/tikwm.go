package download

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"ReelRelay/internal/resolver"
)

const tikwmEndpoint = "https://www.tikwm.com/api/"

// TikWM resolves through the TikWM API and prefers its HD variant.
type TikWM struct {
	client   *http.Client
	endpoint string
}

var _ resolver.Resolver = (*TikWM)(nil)

// NewTikWM wires an HTTP client; an empty endpoint uses the public API.
func NewTikWM(client *http.Client, endpoint string) *TikWM {
	if endpoint == "" {
		endpoint = tikwmEndpoint
	}
	return &TikWM{client: defaultClient(client, 0), endpoint: endpoint}
}

// Name identifies the resolver inside the registry.
func (t *TikWM) Name() string { return "tikwm" }

// Resolve returns the HD URL unless the payload marks it with an error, in
// which case the standard URL is used.
func (t *TikWM) Resolve(ctx context.Context, sourceURL string) (string, error) {
	resp, err := postForm(ctx, t.client, t.endpoint, url.Values{
		"url": {sourceURL},
		"hd":  {"1"},
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data *struct {
			Play   string `json:"play"`
			HDPlay string `json:"hdplay"`
		} `json:"data"`
	}
	if err := decodeJSON(resp, &payload); err != nil {
		return "", err
	}
	if payload.Data == nil {
		return "", nil
	}

	if hd := payload.Data.HDPlay; hd != "" && !strings.Contains(hd, "error") {
		return hd, nil
	}
	return payload.Data.Play, nil
}
