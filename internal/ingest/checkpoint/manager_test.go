package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/janovincze/commentsync/internal/ingest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewManager_DefaultKeys(t *testing.T) {
	m := NewManager(NewMemoryStore(), Keys{}, nil)

	if m.Keys() != DefaultKeys() {
		t.Errorf("Keys() = %+v, want %+v", m.Keys(), DefaultKeys())
	}
}

func TestManager_LoadWatermark_Missing(t *testing.T) {
	m := NewManager(NewMemoryStore(), DefaultKeys(), testLogger())
	now := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

	w, err := m.LoadWatermark(context.Background(), now)
	if err != nil {
		t.Fatalf("LoadWatermark() error = %v", err)
	}

	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !w.LastFetched.Equal(want) {
		t.Errorf("LastFetched = %v, want %v", w.LastFetched, want)
	}
}

func TestManager_LoadWatermark_Corrupt(t *testing.T) {
	store := NewMemoryStore()
	store.Put("last_fetched.json", []byte(`{"last_fetched": 42}`))
	m := NewManager(store, DefaultKeys(), testLogger())
	now := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

	w, err := m.LoadWatermark(context.Background(), now)
	if err != nil {
		t.Fatalf("LoadWatermark() error = %v", err)
	}
	if !w.LastFetched.Equal(ingest.DefaultWatermark(now).LastFetched) {
		t.Errorf("LastFetched = %v, want default", w.LastFetched)
	}
}

func TestManager_LoadWatermark_TransportError(t *testing.T) {
	store := NewMemoryStore()
	store.FailLoads(errors.New("connection reset"))
	m := NewManager(store, DefaultKeys(), testLogger())

	if _, err := m.LoadWatermark(context.Background(), time.Now()); err == nil {
		t.Error("expected transport error to propagate")
	}
}

func TestManager_WatermarkRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, DefaultKeys(), testLogger())
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := m.SaveWatermark(ctx, ingest.Watermark{LastFetched: ts}); err != nil {
		t.Fatalf("SaveWatermark() error = %v", err)
	}

	raw, ok := store.Get("last_fetched.json")
	if !ok {
		t.Fatal("watermark document not written")
	}
	if string(raw) != `{"last_fetched":"2024-01-01T00:00:00Z"}` {
		t.Errorf("document = %s", raw)
	}

	w, err := m.LoadWatermark(ctx, time.Now())
	if err != nil {
		t.Fatalf("LoadWatermark() error = %v", err)
	}
	if !w.LastFetched.Equal(ts) {
		t.Errorf("LastFetched = %v, want %v", w.LastFetched, ts)
	}
}

func TestManager_LoadProgress(t *testing.T) {
	tests := []struct {
		name string
		doc  []byte
		want ingest.Progress
	}{
		{
			name: "missing",
			want: ingest.Progress{},
		},
		{
			name: "corrupt",
			doc:  []byte(`{"V1": "not-an-object"`),
			want: ingest.Progress{},
		},
		{
			name: "populated",
			doc:  []byte(`{"V1":{"nextPageToken":"tokA"},"V9":{"nextPageToken":"tokZ"}}`),
			want: ingest.Progress{"V1": "tokA", "V9": "tokZ"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			if tt.doc != nil {
				store.Put("fetch_progress.json", tt.doc)
			}
			m := NewManager(store, DefaultKeys(), testLogger())

			got, err := m.LoadProgress(context.Background())
			if err != nil {
				t.Fatalf("LoadProgress() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("LoadProgress() = %v, want %v", got, tt.want)
			}
			for id, c := range tt.want {
				if got[id] != c {
					t.Errorf("LoadProgress()[%s] = %q, want %q", id, got[id], c)
				}
			}
		})
	}
}

func TestManager_SaveProgress(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, DefaultKeys(), testLogger())

	if err := m.SaveProgress(context.Background(), nil); err != nil {
		t.Fatalf("SaveProgress(nil) error = %v", err)
	}
	raw, _ := store.Get("fetch_progress.json")
	if string(raw) != "{}" {
		t.Errorf("document = %s, want {}", raw)
	}

	store.FailSaves(errors.New("disk full"))
	if err := m.SaveProgress(context.Background(), ingest.Progress{"V1": "tok"}); err == nil {
		t.Error("expected save error to propagate")
	}
}

func TestManager_CustomKeys(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, Keys{Watermark: "wm.json", Progress: "pg.json"}, testLogger())
	ctx := context.Background()

	if err := m.SaveProgress(ctx, ingest.Progress{"V1": "t"}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveWatermark(ctx, ingest.Watermark{LastFetched: time.Now()}); err != nil {
		t.Fatal(err)
	}

	writes := store.Writes()
	if len(writes) != 2 || writes[0] != "pg.json" || writes[1] != "wm.json" {
		t.Errorf("Writes() = %v", writes)
	}
}
