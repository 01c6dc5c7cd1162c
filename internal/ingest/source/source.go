// Package source provides item sources that list videos and page through their comments.
package source

import (
	"context"
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
)

// Source lists parent videos and fetches their comments one page at a time.
type Source interface {
	// ListRecent returns up to max video IDs published strictly after since,
	// in source order.
	ListRecent(ctx context.Context, since time.Time, max int) ([]string, error)

	// FetchPage returns one page of comments for videoID, starting at cursor.
	// A zero cursor requests the first page.
	FetchPage(ctx context.Context, videoID string, cursor ingest.Cursor) (ingest.Page, error)

	// Name returns the name/identifier of this source.
	Name() string
}
