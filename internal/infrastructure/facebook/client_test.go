package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReelRelay/internal/domain"
)

const (
	testPage  = "page-1"
	testToken = "token-1"
	mib       = 1024 * 1024
)

// fakeGraph emulates the subset of the Graph API used by the uploader.
type fakeGraph struct {
	t *testing.T

	mu           sync.Mutex
	offsets      []int64
	chunkLens    []int
	transferHits int

	// confirm maps the client offset and chunk length to the server offset.
	confirm func(call int, offset int64, length int) (int64, int)
	// finishBody overrides the finish response.
	finishBody string
	statuses   []string
	statusHits int
	published  map[string]string
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	g := &fakeGraph{
		t:          t,
		finishBody: `{"success":true}`,
		statuses:   []string{"processing", "ready"},
		published:  map[string]string{},
	}
	server := httptest.NewServer(g)
	t.Cleanup(server.Close)
	return g, server
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v18.0/"+testPage+"/videos":
		g.videos(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/v18.0/media-1":
		assert.Equal(g.t, "status", r.URL.Query().Get("fields"))
		status := g.statuses[len(g.statuses)-1]
		if g.statusHits < len(g.statuses) {
			status = g.statuses[g.statusHits]
		}
		g.statusHits++
		_, _ = fmt.Fprintf(w, `{"status":{"video_status":%q},"id":"media-1"}`, status)
	case r.Method == http.MethodPost && r.URL.Path == "/v18.0/media-1":
		require.NoError(g.t, r.ParseForm())
		g.published["title"] = r.PostForm.Get("title")
		g.published["description"] = r.PostForm.Get("description")
		g.published["published"] = r.PostForm.Get("published")
		_, _ = io.WriteString(w, `{"id":"post-1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v18.0/me":
		_, _ = io.WriteString(w, `{"id":"42","name":"Test Page"}`)
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGraph) videos(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		require.NoError(g.t, r.ParseMultipartForm(16*mib))
		assert.Equal(g.t, "transfer", r.FormValue("upload_phase"))
		assert.Equal(g.t, "session-1", r.FormValue("upload_session_id"))

		offset, err := strconv.ParseInt(r.FormValue("start_offset"), 10, 64)
		require.NoError(g.t, err)
		file, _, err := r.FormFile("video_file_chunk")
		require.NoError(g.t, err)
		chunk, err := io.ReadAll(file)
		require.NoError(g.t, err)

		g.transferHits++
		next, status := offset+int64(len(chunk)), http.StatusOK
		if g.confirm != nil {
			next, status = g.confirm(g.transferHits, offset, len(chunk))
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"temporarily unavailable","type":"OAuthException","code":2}}`)
			return
		}
		g.offsets = append(g.offsets, offset)
		g.chunkLens = append(g.chunkLens, len(chunk))
		_, _ = fmt.Fprintf(w, `{"start_offset":"%d","end_offset":"%d"}`, next, next)
		return
	}

	require.NoError(g.t, r.ParseForm())
	switch r.PostForm.Get("upload_phase") {
	case "start":
		_, _ = io.WriteString(w, `{"upload_session_id":"session-1","video_id":"media-1","start_offset":"0","end_offset":"4194304"}`)
	case "finish":
		assert.Equal(g.t, "session-1", r.PostForm.Get("upload_session_id"))
		_, _ = io.WriteString(w, g.finishBody)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestClient(serverURL string, mode string) *Client {
	return NewClient(Config{
		GraphURL:          serverURL,
		APIVersion:        "v18.0",
		PageID:            testPage,
		AccessToken:       testToken,
		PublishMode:       mode,
		ChunkSize:         4 * mib,
		MaxAttempts:       3,
		RetryBaseDelay:    time.Millisecond,
		PollInterval:      time.Millisecond,
		ProcessingTimeout: time.Second,
	}, nil, zerolog.Nop())
}

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestUploadVideoSendsThreeChunksForTenMiB(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	client := newTestClient(server.URL, ModeVideo)

	result, err := client.Publish(context.Background(), writeVideo(t, 10*mib), domain.GeneratedContent{
		Title:       "A title",
		Description: "A description",
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 4194304, 8388608}, graph.offsets)
	assert.Equal(t, []int{4 * mib, 4 * mib, 2 * mib}, graph.chunkLens)
	assert.Equal(t, "media-1", result.RemoteID)
	assert.Equal(t, "post-1", result.PostID)
	assert.Equal(t, "A title", graph.published["title"])
	assert.Equal(t, "true", graph.published["published"])
	assert.Equal(t, 2, graph.statusHits)
}

func TestUploadVideoFollowsServerConfirmedOffset(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	// the server only keeps 3 MiB of the first chunk
	graph.confirm = func(call int, offset int64, length int) (int64, int) {
		if call == 1 {
			return 3 * mib, http.StatusOK
		}
		return offset + int64(length), http.StatusOK
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, 10*mib), "t", "d")
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 3 * mib, 7 * mib}, graph.offsets)
	assert.Equal(t, []int{4 * mib, 4 * mib, 3 * mib}, graph.chunkLens)
}

func TestUploadVideoResendsFromRewoundOffset(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	// the second chunk is lost and the server asks for the data from 2 MiB again
	graph.confirm = func(call int, offset int64, length int) (int64, int) {
		if call == 2 {
			return 2 * mib, http.StatusOK
		}
		return offset + int64(length), http.StatusOK
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, 10*mib), "t", "d")
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 4 * mib, 2 * mib, 6 * mib}, graph.offsets)
	assert.Equal(t, []int{4 * mib, 4 * mib, 4 * mib, 4 * mib}, graph.chunkLens)
}

func TestUploadVideoRetriesStalledOffset(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	// nothing is accepted on the first call
	graph.confirm = func(call int, offset int64, length int) (int64, int) {
		if call == 1 {
			return offset, http.StatusOK
		}
		return offset + int64(length), http.StatusOK
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, 5*mib), "t", "d")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 4 * mib}, graph.offsets)
}

func TestUploadVideoGivesUpOnStuckOffset(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.confirm = func(_ int, offset int64, _ int) (int64, int) {
		return offset, http.StatusOK
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, 5*mib), "t", "d")

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 3, transferErr.Attempts)
	assert.Equal(t, int64(0), transferErr.Offset)
	assert.Equal(t, 3, graph.transferHits)
}

func TestUploadVideoRetriesTransientChunkFailure(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.confirm = func(call int, offset int64, length int) (int64, int) {
		if call == 1 {
			return 0, http.StatusServiceUnavailable
		}
		return offset + int64(length), http.StatusOK
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")
	require.NoError(t, err)
	assert.Equal(t, 2, graph.transferHits)
	assert.Equal(t, []int64{0}, graph.offsets)
}

func TestUploadVideoGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.confirm = func(int, int64, int) (int64, int) {
		return 0, http.StatusBadGateway
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")

	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 3, transferErr.Attempts)
	assert.Equal(t, int64(0), transferErr.Offset)
	assert.Equal(t, 3, graph.transferHits)
}

func TestUploadVideoDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.confirm = func(int, int64, int) (int64, int) {
		return 0, http.StatusBadRequest
	}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 1, graph.transferHits)
}

func TestUploadVideoFinishRejected(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.finishBody = `{"success":false}`
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")

	var rejected *domain.PublishRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "media-1", rejected.MediaID)
}

func TestUploadVideoProcessingError(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.statuses = []string{"processing", "error"}
	client := newTestClient(server.URL, ModeVideo)

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")

	var procErr *domain.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.False(t, procErr.TimedOut)
	assert.Equal(t, "error", procErr.Status)
	assert.Empty(t, graph.published)
}

func TestUploadVideoProcessingTimeout(t *testing.T) {
	t.Parallel()
	graph, server := newFakeGraph(t)
	graph.statuses = []string{"processing"}
	client := newTestClient(server.URL, ModeVideo)
	client.cfg.PollInterval = 5 * time.Millisecond
	client.cfg.ProcessingTimeout = 30 * time.Millisecond

	_, err := client.UploadVideo(context.Background(), writeVideo(t, mib), "t", "d")

	var procErr *domain.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.True(t, procErr.TimedOut)
	assert.Equal(t, "processing", procErr.Status)
}

func TestAPIErrorDecoding(t *testing.T) {
	t.Parallel()
	_, server := newFakeGraph(t)
	client := newTestClient(server.URL, ModeVideo)
	client.cfg.AccessToken = "wrong"

	_, err := client.ValidateToken(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "OAuthException", apiErr.Type)
	assert.False(t, apiErr.Temporary())
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	_, server := newFakeGraph(t)

	me, err := newTestClient(server.URL, ModeReel).ValidateToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "42", Name: "Test Page"}, me)
}

type fakeReelAPI struct {
	mu            sync.Mutex
	finishSuccess bool
	received      int
	headers       http.Header
	finishForm    map[string]string
}

func newReelServer(t *testing.T, api *fakeReelAPI) *httptest.Server {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()

		switch r.URL.Path {
		case "/v18.0/" + testPage + "/video_reels":
			assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("upload_phase") == "start" {
				_ = json.NewEncoder(w).Encode(map[string]string{
					"video_id":   "reel-1",
					"upload_url": server.URL + "/upload/reel-1",
				})
				return
			}
			api.finishForm = map[string]string{
				"video_id":    r.PostForm.Get("video_id"),
				"video_state": r.PostForm.Get("video_state"),
				"description": r.PostForm.Get("description"),
			}
			_ = json.NewEncoder(w).Encode(map[string]bool{"success": api.finishSuccess})
		case "/upload/reel-1":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			api.received = len(body)
			api.headers = r.Header.Clone()
			_, _ = io.WriteString(w, `{"success":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestUploadReelPublishes(t *testing.T) {
	t.Parallel()
	api := &fakeReelAPI{finishSuccess: true}
	server := newReelServer(t, api)

	result, err := newTestClient(server.URL, ModeReel).Publish(context.Background(), writeVideo(t, 5000),
		domain.GeneratedContent{Title: "ignored", Description: "Reel description"})
	require.NoError(t, err)

	assert.Equal(t, "reel-1", result.RemoteID)
	assert.Equal(t, "https://www.facebook.com/reel/reel-1", result.URL)
	assert.Equal(t, 5000, api.received)
	assert.Equal(t, "OAuth "+testToken, api.headers.Get("Authorization"))
	assert.Equal(t, "0", api.headers.Get("offset"))
	assert.Equal(t, "5000", api.headers.Get("file_size"))
	assert.Equal(t, map[string]string{
		"video_id":    "reel-1",
		"video_state": "PUBLISHED",
		"description": "Reel description",
	}, api.finishForm)
}

func TestUploadReelSuccessFalseIsRejected(t *testing.T) {
	t.Parallel()
	api := &fakeReelAPI{finishSuccess: false}
	server := newReelServer(t, api)

	_, err := newTestClient(server.URL, ModeReel).UploadReel(context.Background(), writeVideo(t, 5000), "d")

	var rejected *domain.PublishRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "reel-1", rejected.MediaID)
}
