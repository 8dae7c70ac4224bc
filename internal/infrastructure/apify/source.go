package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ReelRelay/internal/config"
	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

// TikTokSource implements ports.VideoSource through an Apify scraper actor.
type TikTokSource struct {
	endpoint   string
	actorID    string
	token      string
	hashtags   []string
	minViews   int64
	minLikes   int64
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ ports.VideoSource = (*TikTokSource)(nil)

// NewTikTokSource builds a source from configuration. The actor runs
// synchronously, so the HTTP timeout covers the whole scrape.
func NewTikTokSource(cfg config.DiscoveryConfig, logger zerolog.Logger) *TikTokSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &TikTokSource{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		actorID:    cfg.ActorID,
		token:      cfg.Token,
		hashtags:   cfg.Hashtags,
		minViews:   cfg.MinViews,
		minLikes:   cfg.MinLikes,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type actorInput struct {
	Hashtags             []string `json:"hashtags"`
	ResultsPerPage       int      `json:"resultsPerPage"`
	MaxItems             int      `json:"maxItems"`
	ShouldDownloadVideos bool     `json:"shouldDownloadVideos"`
	ShouldDownloadCovers bool     `json:"shouldDownloadCovers"`
}

// FetchCandidates runs the actor, drops low-engagement items and returns at
// most limit videos in the order the actor produced them.
func (s *TikTokSource) FetchCandidates(ctx context.Context, limit int) ([]domain.Video, error) {
	if limit <= 0 {
		return nil, nil
	}

	body, err := json.Marshal(actorInput{
		Hashtags:       s.hashtags,
		ResultsPerPage: limit * 2,
		MaxItems:       limit * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	// Actor IDs use "~" instead of "/" in API paths.
	actor := strings.ReplaceAll(s.actorID, "/", "~")
	target := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items", s.endpoint, actor)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run actor %s: %w", s.actorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("apify error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var items []datasetItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}

	videos := make([]domain.Video, 0, limit)
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		video := item.toVideo()
		if video.Views < s.minViews || video.Likes < s.minLikes {
			continue
		}
		videos = append(videos, video)
		if len(videos) == limit {
			break
		}
	}

	s.logger.Info().Int("items", len(items)).Int("candidates", len(videos)).Msg("discovery finished")
	return videos, nil
}
