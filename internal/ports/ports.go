package ports

import (
	"context"
	"time"

	"ReelRelay/internal/domain"
)

// VideoSource pulls trending candidates from the discovery provider.
type VideoSource interface {
	FetchCandidates(ctx context.Context, limit int) ([]domain.Video, error)
}

// VideoRepository persists processing state for deduplication and audit.
type VideoRepository interface {
	IsProcessed(ctx context.Context, id string) (bool, error)
	HashExists(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (domain.Record, error)
	RecordNew(ctx context.Context, record domain.Record) (bool, error)
	SetGeneratedContent(ctx context.Context, id, title, description string) error
	MarkUploaded(ctx context.Context, id, remoteID string) error
	MarkFailed(ctx context.Context, id string) error
	Stats(ctx context.Context) (domain.Stats, error)
	Recent(ctx context.Context, limit int) ([]domain.Record, error)
}

// Acquirer turns a source reference into a verified local media file.
type Acquirer interface {
	Acquire(ctx context.Context, sourceURL, videoID string) (string, error)
}

// ContentGenerator writes new title/description text. It never fails.
type ContentGenerator interface {
	Generate(ctx context.Context, video domain.Video) domain.GeneratedContent
}

// Publisher uploads a local media file to the destination platform.
type Publisher interface {
	Publish(ctx context.Context, path string, content domain.GeneratedContent) (domain.PublishResult, error)
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
