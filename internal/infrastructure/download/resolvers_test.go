package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceURL = "https://www.tiktok.com/@creator/video/7300000000000000001"

func TestTikWMPrefersHD(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, sourceURL, r.PostForm.Get("url"))
		assert.Equal(t, "1", r.PostForm.Get("hd"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"play":"https://cdn/sd.mp4","hdplay":"https://cdn/hd.mp4"}}`))
	}))
	defer server.Close()

	url, err := NewTikWM(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/hd.mp4", url)
}

func TestTikWMRejectsHDWithErrorMarker(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"play":"https://cdn/sd.mp4","hdplay":"https://cdn/error/hd.mp4"}}`))
	}))
	defer server.Close()

	url, err := NewTikWM(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/sd.mp4", url)
}

func TestTikWMWithoutDataIsAbsent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":-1,"msg":"Url parsing is failed!"}`))
	}))
	defer server.Close()

	url, err := NewTikWM(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestSnapTikParsesAnchor(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="video-links">
			<a href="/ads">ad</a>
			<a class="button" href="https://d.snaptik.app/file.mp4?token=a&dl=1">Download</a>
		</div>`))
	}))
	defer server.Close()

	url, err := NewSnapTik(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "https://d.snaptik.app/file.mp4?token=a&dl=1", url)
}

func TestSnapTikFallsBackToScriptPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<script>var html = '<a href="https://d.snaptik.app/v.mp4?x=1&y=2">';</script>`))
	}))
	defer server.Close()

	url, err := NewSnapTik(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "https://d.snaptik.app/v.mp4?x=1&y=2", url)
}

func TestDouyinReadsNoWatermarkURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sourceURL, r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"nwm_video_url":"https://cdn/nwm.mp4"}`))
	}))
	defer server.Close()

	url, err := NewDouyin(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/nwm.mp4", url)
}

func TestResolverSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewDouyin(server.Client(), server.URL).Resolve(context.Background(), sourceURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down for maintenance")
}
