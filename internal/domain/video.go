package domain

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Video is a candidate discovered on the source platform.
type Video struct {
	ID        string
	URL       string
	Text      string
	Author    string
	Hashtags  []string
	Views     int64
	Likes     int64
	Shares    int64
	Comments  int64
	Music     string
	Meta      MediaMeta
	CreatedAt time.Time
}

// MediaMeta carries the technical attributes reported by the discovery provider.
type MediaMeta struct {
	Duration float64
	Width    int
	Height   int
}

// GeneratedContent is the text produced for republishing a video.
type GeneratedContent struct {
	Title       string
	Description string
	Hashtags    []string
}

// Status enumerates the lifecycle of a tracked video.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusUploaded Status = "uploaded"
	StatusFailed   Status = "failed"
)

// Record is the persisted deduplication entry keyed by the source ID.
type Record struct {
	ID                   string
	URL                  string
	Hash                 string
	OriginalTitle        string
	OriginalText         string
	GeneratedTitle       string
	GeneratedDescription string
	RemoteID             string
	Status               Status
	CreatedAt            time.Time
	UploadedAt           *time.Time
}

// Stats aggregates records per status.
type Stats struct {
	Total    int
	Pending  int
	Ready    int
	Uploaded int
	Failed   int
}

// PublishResult describes a video accepted by the remote platform.
type PublishResult struct {
	RemoteID string
	PostID   string
	URL      string
}

// ItemError ties a per-item failure to its source ID.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RunSummary is returned by every pipeline run, even a partially failed one.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Succeeded  int
	Failed     int
	Errors     []ItemError
}

// HashURL returns the content digest used for duplicate detection.
func HashURL(url string) string {
	sum := blake3.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}
