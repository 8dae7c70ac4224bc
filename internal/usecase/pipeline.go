package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const (
	defaultItemDelay   = 30 * time.Second
	originalTitleRunes = 100
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.VideoSource
	Repository ports.VideoRepository
	Acquirer   ports.Acquirer
	Generator  ports.ContentGenerator
	Publisher  ports.Publisher
	Notifier   ports.Notifier
	Logger     zerolog.Logger

	// ItemDelay separates consecutive successful items. Zero means 30s,
	// negative disables pacing.
	ItemDelay time.Duration
	// Wait suspends the run between items; defaults to a context-aware sleep.
	Wait func(ctx context.Context, d time.Duration) error
	// RemoveFile deletes published media; defaults to os.Remove.
	RemoveFile func(path string) error
	Now        func() time.Time
}

// Pipeline implements the discover, filter, acquire, transform, publish,
// record workflow. Items are processed strictly one at a time.
type Pipeline struct {
	source     ports.VideoSource
	repository ports.VideoRepository
	acquirer   ports.Acquirer
	generator  ports.ContentGenerator
	publisher  ports.Publisher
	notifier   ports.Notifier
	logger     zerolog.Logger

	itemDelay  time.Duration
	wait       func(ctx context.Context, d time.Duration) error
	removeFile func(path string) error
	now        func() time.Time

	running *semaphore.Weighted
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:     deps.Source,
		repository: deps.Repository,
		acquirer:   deps.Acquirer,
		generator:  deps.Generator,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		itemDelay:  deps.ItemDelay,
		wait:       deps.Wait,
		removeFile: deps.RemoveFile,
		now:        deps.Now,
		running:    semaphore.NewWeighted(1),
	}
	if p.itemDelay == 0 {
		p.itemDelay = defaultItemDelay
	}
	if p.wait == nil {
		p.wait = sleep
	}
	if p.removeFile == nil {
		p.removeFile = os.Remove
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Run processes up to count new videos. Per-item failures are recorded in
// the summary and never returned; discovery and store errors while
// selecting items abort the run. Cancelling ctx stops the run at the next
// item boundary while the item in flight completes.
func (p *Pipeline) Run(ctx context.Context, count int) (domain.RunSummary, error) {
	if !p.running.TryAcquire(1) {
		return domain.RunSummary{}, ErrRunInProgress
	}
	defer p.running.Release(1)

	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	logger := p.logger.With().Str("run_id", summary.RunID).Logger()
	logger.Info().Int("count", count).Msg("pipeline run started")

	if count <= 0 {
		summary.FinishedAt = p.now()
		return summary, nil
	}

	candidates, err := p.source.FetchCandidates(ctx, count*2)
	if err != nil {
		summary.FinishedAt = p.now()
		return summary, fmt.Errorf("discover candidates: %w", err)
	}

	selected, err := p.selectNew(ctx, logger, candidates, count)
	if err != nil {
		summary.FinishedAt = p.now()
		return summary, fmt.Errorf("filter candidates: %w", err)
	}
	logger.Info().Int("candidates", len(candidates)).Int("selected", len(selected)).Msg("candidates filtered")

	work := context.WithoutCancel(ctx)
	for i, video := range selected {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(selected)-i).Msg("run cancelled before next item")
			break
		}

		summary.Processed++
		itemLogger := logger.With().Str("video_id", video.ID).Logger()
		itemLogger.Info().
			Int("position", i+1).
			Int("of", len(selected)).
			Str("author", video.Author).
			Int64("views", video.Views).
			Msg("processing video")

		if err := p.processItem(work, itemLogger, video); err != nil {
			var unrecorded *domain.UnrecordedPublishError
			if errors.As(err, &unrecorded) {
				// the record stays ready and is never picked up again
				itemLogger.Error().Err(err).Str("remote_id", unrecorded.RemoteID).
					Msg("video published but not recorded, reconcile manually")
			} else {
				itemLogger.Error().Err(err).Msg("video failed")
				if markErr := p.repository.MarkFailed(work, video.ID); markErr != nil {
					itemLogger.Error().Err(markErr).Msg("could not mark video failed")
				}
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, domain.ItemError{ID: video.ID, Error: err.Error()})
			continue
		}
		summary.Succeeded++

		if i < len(selected)-1 && p.itemDelay > 0 {
			itemLogger.Debug().Dur("delay", p.itemDelay).Msg("pacing before next video")
			if err := p.wait(ctx, p.itemDelay); err != nil {
				logger.Warn().Err(err).Msg("run cancelled during pacing")
				break
			}
		}
	}

	summary.FinishedAt = p.now()
	logger.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("pipeline run finished")

	p.notify(work, logger, summary)
	return summary, nil
}

// selectNew keeps the provider order and stops once count new videos are found.
func (p *Pipeline) selectNew(ctx context.Context, logger zerolog.Logger, candidates []domain.Video, count int) ([]domain.Video, error) {
	selected := make([]domain.Video, 0, count)
	seenHashes := make(map[string]struct{}, len(candidates))

	for _, video := range candidates {
		if len(selected) >= count {
			break
		}

		processed, err := p.repository.IsProcessed(ctx, video.ID)
		if err != nil {
			return nil, err
		}
		if processed {
			logger.Debug().Str("video_id", video.ID).Msg("skipping uploaded video")
			continue
		}

		hash := domain.HashURL(video.URL)
		if _, dup := seenHashes[hash]; dup {
			logger.Debug().Str("video_id", video.ID).Msg("skipping duplicate within batch")
			continue
		}

		retry, err := p.isRetry(ctx, video.ID, hash)
		if err != nil {
			return nil, err
		}
		if !retry {
			logger.Debug().Str("video_id", video.ID).Msg("skipping duplicate content")
			continue
		}

		seenHashes[hash] = struct{}{}
		selected = append(selected, video)
	}
	return selected, nil
}

// isRetry reports whether a video may be attempted. A known hash only
// qualifies when it belongs to this video's own pending or failed record; a
// hash owned by any other record is duplicate content. A ready record may
// already be live and is left alone.
func (p *Pipeline) isRetry(ctx context.Context, id, hash string) (bool, error) {
	exists, err := p.repository.HashExists(ctx, hash)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}

	record, err := p.repository.Get(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.Hash != hash {
		return false, nil
	}
	return record.Status == domain.StatusPending || record.Status == domain.StatusFailed, nil
}

func (p *Pipeline) processItem(ctx context.Context, logger zerolog.Logger, video domain.Video) error {
	inserted, err := p.repository.RecordNew(ctx, domain.Record{
		ID:            video.ID,
		URL:           video.URL,
		Hash:          domain.HashURL(video.URL),
		OriginalTitle: truncateRunes(video.Text, originalTitleRunes),
		OriginalText:  video.Text,
		CreatedAt:     p.now(),
	})
	if err != nil {
		return fmt.Errorf("record video: %w", err)
	}
	if !inserted {
		logger.Info().Msg("retrying previously attempted video")
	}

	path, err := p.acquirer.Acquire(ctx, video.URL, video.ID)
	if err != nil {
		return err
	}

	content := p.generator.Generate(ctx, video)
	logger.Info().Str("title", content.Title).Msg("content generated")

	if err := p.repository.SetGeneratedContent(ctx, video.ID, content.Title, content.Description); err != nil {
		return fmt.Errorf("store generated content: %w", err)
	}

	result, err := p.publisher.Publish(ctx, path, content)
	if err != nil {
		logger.Warn().Str("path", path).Msg("keeping downloaded file for inspection")
		return fmt.Errorf("publish: %w", err)
	}

	logger.Info().Str("remote_id", result.RemoteID).Str("url", result.URL).Msg("video published")
	p.cleanup(logger, path)

	if err := p.repository.MarkUploaded(ctx, video.ID, result.RemoteID); err != nil {
		return &domain.UnrecordedPublishError{VideoID: video.ID, RemoteID: result.RemoteID, Err: err}
	}
	return nil
}

func (p *Pipeline) cleanup(logger zerolog.Logger, path string) {
	if err := p.removeFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str("path", path).Msg("could not remove published file")
	}
}

func (p *Pipeline) notify(ctx context.Context, logger zerolog.Logger, summary domain.RunSummary) {
	if p.notifier == nil || summary.Processed == 0 {
		return
	}
	if err := p.notifier.PublishSummary(ctx, FormatSummary(summary)); err != nil {
		logger.Warn().Err(err).Msg("summary notification failed")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
