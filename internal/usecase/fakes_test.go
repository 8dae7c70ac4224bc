package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ReelRelay/internal/domain"
)

type fakeSource struct {
	videos    []domain.Video
	err       error
	requested int
}

func (f *fakeSource) FetchCandidates(_ context.Context, limit int) ([]domain.Video, error) {
	f.requested = limit
	return f.videos, f.err
}

// memoryRepository is an in-memory VideoRepository.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]domain.Record
	failOn  string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: map[string]domain.Record{}}
}

func (m *memoryRepository) seed(id, url string, status domain.Status) {
	m.records[id] = domain.Record{ID: id, URL: url, Hash: domain.HashURL(url), Status: status}
}

func (m *memoryRepository) IsProcessed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "IsProcessed" {
		return false, errors.New("database is locked")
	}
	r, ok := m.records[id]
	return ok && r.Status == domain.StatusUploaded, nil
}

func (m *memoryRepository) HashExists(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepository) Get(_ context.Context, id string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return domain.Record{}, domain.ErrRecordNotFound
	}
	return r, nil
}

func (m *memoryRepository) RecordNew(_ context.Context, record domain.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return false, nil
	}
	record.Status = domain.StatusPending
	m.records[record.ID] = record
	return true, nil
}

func (m *memoryRepository) update(id string, fn func(*domain.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	fn(&r)
	m.records[id] = r
	return nil
}

func (m *memoryRepository) SetGeneratedContent(_ context.Context, id, title, description string) error {
	return m.update(id, func(r *domain.Record) {
		r.GeneratedTitle, r.GeneratedDescription, r.Status = title, description, domain.StatusReady
	})
}

func (m *memoryRepository) MarkUploaded(_ context.Context, id, remoteID string) error {
	m.mu.Lock()
	failing := m.failOn == "MarkUploaded"
	m.mu.Unlock()
	if failing {
		return errors.New("disk I/O error")
	}
	return m.update(id, func(r *domain.Record) {
		now := time.Now()
		r.RemoteID, r.Status, r.UploadedAt = remoteID, domain.StatusUploaded, &now
	})
}

func (m *memoryRepository) MarkFailed(_ context.Context, id string) error {
	return m.update(id, func(r *domain.Record) { r.Status = domain.StatusFailed })
}

func (m *memoryRepository) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{}, nil
}

func (m *memoryRepository) Recent(context.Context, int) ([]domain.Record, error) {
	return nil, nil
}

func (m *memoryRepository) status(id string) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Status
}

// fakeAcquirer writes a small file per video and records the call order.
type fakeAcquirer struct {
	dir    string
	fail   map[string]bool
	order  []string
	paths  map[string]string
	before func(id string)
}

func (f *fakeAcquirer) Acquire(_ context.Context, _ string, id string) (string, error) {
	if f.before != nil {
		f.before(id)
	}
	f.order = append(f.order, id)
	if f.fail[id] {
		return "", &domain.AcquisitionError{VideoID: id, Reason: "all resolvers failed"}
	}
	path := filepath.Join(f.dir, "video_"+id+".mp4")
	if err := os.WriteFile(path, []byte("media"), 0o600); err != nil {
		return "", err
	}
	if f.paths == nil {
		f.paths = map[string]string{}
	}
	f.paths[id] = path
	return path, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, video domain.Video) domain.GeneratedContent {
	return domain.GeneratedContent{Title: "title " + video.ID, Description: "description " + video.ID}
}

type fakePublisher struct {
	fail      map[string]bool
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, path string, content domain.GeneratedContent) (domain.PublishResult, error) {
	id := strings.TrimPrefix(content.Title, "title ")
	if f.fail[id] {
		return domain.PublishResult{}, &domain.PublishRejectedError{MediaID: "m-" + id, Phase: "reel finish"}
	}
	if _, err := os.Stat(path); err != nil {
		return domain.PublishResult{}, fmt.Errorf("missing media: %w", err)
	}
	f.published = append(f.published, id)
	return domain.PublishResult{RemoteID: "fb-" + id}, nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (f *fakeNotifier) PublishSummary(_ context.Context, summary string) error {
	f.messages = append(f.messages, summary)
	return f.err
}

func video(id string) domain.Video {
	return domain.Video{ID: id, URL: "https://www.tiktok.com/@creator/video/" + id, Text: "text " + id, Author: "creator"}
}
