package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
)

// PageRequest records one FetchPage call made against a Scripted source.
type PageRequest struct {
	VideoID string
	Cursor  ingest.Cursor
}

// Scripted is an in-memory Source that serves pre-registered pages to tests.
type Scripted struct {
	mu       sync.Mutex
	videos   []string
	pages    map[PageRequest]ingest.Page
	failures map[PageRequest]error
	listErr  error
	requests []PageRequest
	since    []time.Time
}

// NewScripted creates a Scripted source that lists the given videos.
func NewScripted(videos ...string) *Scripted {
	return &Scripted{
		videos:   videos,
		pages:    make(map[PageRequest]ingest.Page),
		failures: make(map[PageRequest]error),
	}
}

// AddPage registers the page returned for videoID at cursor.
func (s *Scripted) AddPage(videoID string, cursor ingest.Cursor, page ingest.Page) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[PageRequest{VideoID: videoID, Cursor: cursor}] = page
	return s
}

// FailPage makes the fetch of videoID at cursor return err.
func (s *Scripted) FailPage(videoID string, cursor ingest.Cursor, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[PageRequest{VideoID: videoID, Cursor: cursor}] = err
	return s
}

// FailList makes ListRecent return err.
func (s *Scripted) FailList(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
	return s
}

// ListRecent returns at most max of the registered videos.
func (s *Scripted) ListRecent(_ context.Context, since time.Time, max int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.since = append(s.since, since)
	if s.listErr != nil {
		return nil, s.listErr
	}

	ids := s.videos
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return append([]string(nil), ids...), nil
}

// FetchPage returns the registered page, or an empty page if none was registered.
func (s *Scripted) FetchPage(_ context.Context, videoID string, cursor ingest.Cursor) (ingest.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := PageRequest{VideoID: videoID, Cursor: cursor}
	s.requests = append(s.requests, req)

	if err, ok := s.failures[req]; ok {
		return ingest.Page{}, fmt.Errorf("fetch comments for %s: %w", videoID, err)
	}
	return s.pages[req], nil
}

// Name returns the name of this source.
func (s *Scripted) Name() string {
	return "scripted"
}

// Requests returns every FetchPage call, in order.
func (s *Scripted) Requests() []PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PageRequest(nil), s.requests...)
}

// ListedSince returns the since argument of every ListRecent call.
func (s *Scripted) ListedSince() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.since...)
}

var _ Source = (*Scripted)(nil)
