package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/source"
	"github.com/janovincze/commentsync/internal/metrics"
	"github.com/janovincze/commentsync/internal/retry"
)

const (
	operationListRecent = "list_recent"
	operationFetchPage  = "fetch_page"
)

// Source implements source.Source against the YouTube Data API.
type Source struct {
	svc     *yt.Service
	cfg     Config
	limiter *rate.Limiter
	retryer *retry.Retryer
	logger  *slog.Logger
}

// New creates a YouTube source.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid youtube config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Source{
		svc:     svc,
		cfg:     cfg,
		limiter: limiter,
		retryer: retry.NewRetryer(cfg.Retry, logger),
		logger:  logger.With("component", "youtube-source"),
	}, nil
}

// Name returns the name of this source.
func (s *Source) Name() string {
	return "youtube"
}

// ListRecent searches for videos matching the query published strictly after since.
func (s *Source) ListRecent(ctx context.Context, since time.Time, max int) ([]string, error) {
	resp, err := retry.Do(ctx, s.retryer.WithOperation(operationListRecent), func(ctx context.Context) (*yt.SearchListResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}

		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		call := s.svc.Search.List([]string{"snippet"}).
			Q(s.cfg.Query).
			Type("video").
			MaxResults(int64(max)).
			PublishedAfter(ingest.FormatTimestamp(since)).
			Context(callCtx)
		if s.cfg.Order != "" {
			call = call.Order(s.cfg.Order)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if err != nil {
		metrics.SourceRequestsTotal.WithLabelValues(operationListRecent, "error").Inc()
		return nil, fmt.Errorf("search recent videos: %w", err)
	}
	metrics.SourceRequestsTotal.WithLabelValues(operationListRecent, "success").Inc()

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		if !publishedAfter(item.Snippet, since) {
			continue
		}
		ids = append(ids, item.Id.VideoId)
		if max > 0 && len(ids) == max {
			break
		}
	}

	s.logger.Debug("listed recent videos",
		"since", ingest.FormatTimestamp(since),
		"videos", len(ids),
	)

	return ids, nil
}

// FetchPage fetches one page of top-level comments for a video.
func (s *Source) FetchPage(ctx context.Context, videoID string, cursor ingest.Cursor) (ingest.Page, error) {
	resp, err := retry.Do(ctx, s.retryer.WithOperation(operationFetchPage), func(ctx context.Context) (*yt.CommentThreadListResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(err)
		}

		callCtx, cancel := s.callContext(ctx)
		defer cancel()

		call := s.svc.CommentThreads.List([]string{"snippet"}).
			VideoId(videoID).
			MaxResults(s.cfg.PageSize).
			Context(callCtx)
		if !cursor.IsZero() {
			call = call.PageToken(string(cursor))
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if err != nil {
		if hasNoComments(err) {
			metrics.SourceRequestsTotal.WithLabelValues(operationFetchPage, "no_comments").Inc()
			s.logger.Info("comments unavailable for video", "video_id", videoID, "error", err)
			return ingest.Page{}, nil
		}
		metrics.SourceRequestsTotal.WithLabelValues(operationFetchPage, "error").Inc()
		return ingest.Page{}, fmt.Errorf("fetch comments for %s: %w", videoID, err)
	}
	metrics.SourceRequestsTotal.WithLabelValues(operationFetchPage, "success").Inc()

	page := ingest.Page{
		Comments:   make([]ingest.Comment, 0, len(resp.Items)),
		NextCursor: ingest.Cursor(resp.NextPageToken),
	}
	for _, thread := range resp.Items {
		comment, ok, err := toComment(videoID, thread)
		if err != nil {
			return ingest.Page{}, fmt.Errorf("decode comment for %s: %w", videoID, err)
		}
		if ok {
			page.Comments = append(page.Comments, comment)
		}
	}

	return page, nil
}

func (s *Source) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// toComment flattens a thread's top-level comment snippet and merges its id.
func toComment(videoID string, thread *yt.CommentThread) (ingest.Comment, bool, error) {
	if thread == nil || thread.Snippet == nil || thread.Snippet.TopLevelComment == nil {
		return ingest.Comment{}, false, nil
	}
	top := thread.Snippet.TopLevelComment

	fields := make(map[string]json.RawMessage)
	if top.Snippet != nil {
		raw, err := json.Marshal(top.Snippet)
		if err != nil {
			return ingest.Comment{}, false, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return ingest.Comment{}, false, err
		}
	}

	id, err := json.Marshal(top.Id)
	if err != nil {
		return ingest.Comment{}, false, err
	}
	fields["id"] = id

	payload, err := json.Marshal(fields)
	if err != nil {
		return ingest.Comment{}, false, err
	}

	return ingest.Comment{
		ID:      top.Id,
		VideoID: videoID,
		Payload: payload,
	}, true, nil
}

// publishedAfter reports whether the search result was published strictly after since.
// Results without a parseable timestamp are kept.
func publishedAfter(snippet *yt.SearchResultSnippet, since time.Time) bool {
	if snippet == nil || snippet.PublishedAt == "" {
		return true
	}
	t, err := ingest.ParseTimestamp(snippet.PublishedAt)
	if err != nil {
		return true
	}
	return t.After(since)
}

var _ source.Source = (*Source)(nil)
