// Package ingest provides the shared types for incremental comment ingestion.
package ingest

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Cursor is an opaque, source-issued pagination token.
// The zero value means "start from the beginning" or "no further page".
type Cursor string

// IsZero reports whether the cursor is absent.
func (c Cursor) IsZero() bool {
	return c == ""
}

// Comment is a single child record fetched for a video.
type Comment struct {
	// ID is the stable comment identifier assigned by the source.
	ID string `json:"id"`

	// VideoID is the parent video the comment belongs to.
	VideoID string `json:"video_id"`

	// Payload is the comment exactly as fetched, with its ID merged in.
	Payload json.RawMessage `json:"payload"`
}

// Size returns the number of payload bytes the comment occupies on the wire.
func (c Comment) Size() int {
	return len(c.Payload)
}

// Page is one page of comments returned by the source.
type Page struct {
	// Comments holds the records of this page, in source order.
	Comments []Comment

	// NextCursor is the token for the following page, empty when exhausted.
	NextCursor Cursor
}

// IsEmpty returns true if the page carries no comments.
func (p Page) IsEmpty() bool {
	return len(p.Comments) == 0
}

// HasMore returns true if the source signalled a further page.
func (p Page) HasMore() bool {
	return !p.NextCursor.IsZero()
}

// Progress maps a video ID to the cursor of its next unfetched page.
// A video is present iff it still has at least one page to fetch.
type Progress map[string]Cursor

// progressEntry is the persisted shape of a single Progress value.
type progressEntry struct {
	NextPageToken Cursor `json:"nextPageToken"`
}

// Clone returns an independent copy of the progress map.
func (p Progress) Clone() Progress {
	out := make(Progress, len(p))
	maps.Copy(out, p)
	return out
}

// Cursor returns the resume cursor for a video, or the zero cursor.
func (p Progress) Cursor(videoID string) Cursor {
	return p[videoID]
}

// Pending returns true if the video still has a stored cursor.
func (p Progress) Pending(videoID string) bool {
	c, ok := p[videoID]
	return ok && !c.IsZero()
}

// MarshalJSON encodes the map as {"<video_id>": {"nextPageToken": "<token>"}}.
func (p Progress) MarshalJSON() ([]byte, error) {
	doc := make(map[string]progressEntry, len(p))
	for id, c := range p {
		doc[id] = progressEntry{NextPageToken: c}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes the persisted progress document.
// Entries without a token are dropped.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var doc map[string]progressEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode progress: %w", err)
	}

	out := make(Progress, len(doc))
	for id, entry := range doc {
		if entry.NextPageToken.IsZero() {
			continue
		}
		out[id] = entry.NextPageToken
	}
	*p = out
	return nil
}

// Watermark is the persisted "last fully drained" instant.
type Watermark struct {
	// LastFetched is the start time of the last run that drained every candidate.
	LastFetched time.Time
}

// watermarkDocument is the persisted shape of a Watermark.
type watermarkDocument struct {
	LastFetched string `json:"last_fetched"`
}

// MarshalJSON encodes the watermark as {"last_fetched": "<RFC 3339 UTC>"}.
func (w Watermark) MarshalJSON() ([]byte, error) {
	return json.Marshal(watermarkDocument{LastFetched: FormatTimestamp(w.LastFetched)})
}

// UnmarshalJSON decodes the persisted watermark document.
func (w *Watermark) UnmarshalJSON(data []byte) error {
	var doc watermarkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode watermark: %w", err)
	}
	if doc.LastFetched == "" {
		return fmt.Errorf("decode watermark: missing last_fetched")
	}

	t, err := ParseTimestamp(doc.LastFetched)
	if err != nil {
		return fmt.Errorf("decode watermark: %w", err)
	}
	w.LastFetched = t
	return nil
}

// DefaultWatermark returns January 1 of now's year, in UTC.
func DefaultWatermark(now time.Time) Watermark {
	return Watermark{LastFetched: time.Date(now.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)}
}

// FormatTimestamp renders t as RFC 3339 in UTC with a trailing Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses an RFC 3339 timestamp, accepting fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
