package drain

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/janovincze/commentsync/internal/ingest"
	"github.com/janovincze/commentsync/internal/ingest/source"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingWriter keeps a snapshot of every saved progress map.
type recordingWriter struct {
	saves []ingest.Progress
	err   error
}

func (w *recordingWriter) SaveProgress(_ context.Context, p ingest.Progress) error {
	if w.err != nil {
		return w.err
	}
	w.saves = append(w.saves, p.Clone())
	return nil
}

func (w *recordingWriter) last() ingest.Progress {
	if len(w.saves) == 0 {
		return nil
	}
	return w.saves[len(w.saves)-1]
}

func comments(videoID string, n int) []ingest.Comment {
	out := make([]ingest.Comment, n)
	for i := range out {
		id := videoID + "-c" + string(rune('0'+i))
		out[i] = ingest.Comment{ID: id, VideoID: videoID, Payload: json.RawMessage(`{"id":"` + id + `"}`)}
	}
	return out
}

func TestEngine_NewVideoWithCursor(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "", ingest.Page{Comments: comments("V1", 3), NextCursor: "tokA"})
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V1"}, ingest.Progress{})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if got := res.Progress["V1"]; got != "tokA" {
		t.Errorf("Progress[V1] = %q, want tokA", got)
	}
	if res.FullyDrained {
		t.Error("FullyDrained = true, want false")
	}
	if len(res.Comments) != 3 {
		t.Errorf("len(Comments) = %d, want 3", len(res.Comments))
	}
	if len(w.saves) != 1 || w.last()["V1"] != "tokA" {
		t.Errorf("saves = %v, want one save with V1=tokA", w.saves)
	}
}

func TestEngine_ResumesFromStoredCursor(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "tokA", ingest.Page{Comments: comments("V1", 1)})
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V1"}, ingest.Progress{"V1": "tokA"})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	reqs := src.Requests()
	if len(reqs) != 1 || reqs[0].Cursor != "tokA" {
		t.Fatalf("requests = %v, want one request with cursor tokA", reqs)
	}
	if _, ok := res.Progress["V1"]; ok {
		t.Error("Progress still has V1 after exhaustion")
	}
	if !res.FullyDrained {
		t.Error("FullyDrained = false, want true")
	}
	if len(w.saves) != 1 || len(w.last()) != 0 {
		t.Errorf("saves = %v, want one save of an empty map", w.saves)
	}
}

func TestEngine_MixedBatch(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "", ingest.Page{Comments: comments("V1", 3), NextCursor: "tokA"}).
		AddPage("V2", "", ingest.Page{Comments: comments("V2", 2)})
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V1", "V2"}, ingest.Progress{})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if len(res.Comments) != 5 {
		t.Errorf("len(Comments) = %d, want 5", len(res.Comments))
	}
	if res.Comments[0].VideoID != "V1" || res.Comments[4].VideoID != "V2" {
		t.Errorf("comments not in input order: %v", res.Comments)
	}
	if len(res.Progress) != 1 || res.Progress["V1"] != "tokA" {
		t.Errorf("Progress = %v, want {V1: tokA}", res.Progress)
	}
	if res.FullyDrained {
		t.Error("FullyDrained = true, want false")
	}

	wantStates := []State{StatePending, StateExhausted}
	for i, o := range res.Outcomes {
		if o.State != wantStates[i] {
			t.Errorf("Outcomes[%d].State = %s, want %s", i, o.State, wantStates[i])
		}
	}
}

func TestEngine_AllExhausted(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "", ingest.Page{Comments: comments("V1", 3)}).
		AddPage("V2", "", ingest.Page{Comments: comments("V2", 2)})
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V1", "V2"}, ingest.Progress{})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if !res.FullyDrained {
		t.Error("FullyDrained = false, want true")
	}
	if len(res.Progress) != 0 {
		t.Errorf("Progress = %v, want empty", res.Progress)
	}
	if len(w.saves) != 0 {
		t.Errorf("saves = %d, want 0 (map never changed)", len(w.saves))
	}
}

func TestEngine_EmptyPageRemovesEntry(t *testing.T) {
	src := source.NewScripted()
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V1", "V2"}, ingest.Progress{"V1": "tokA"})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if len(res.Progress) != 0 {
		t.Errorf("Progress = %v, want empty", res.Progress)
	}
	if !res.FullyDrained {
		t.Error("FullyDrained = false, want true")
	}
	if len(w.saves) != 1 {
		t.Errorf("saves = %d, want 1", len(w.saves))
	}
	for _, o := range res.Outcomes {
		if o.State != StateEmpty {
			t.Errorf("Outcome %s state = %s, want empty", o.VideoID, o.State)
		}
	}
}

func TestEngine_StaleEntryForNonCandidate(t *testing.T) {
	src := source.NewScripted().
		AddPage("V2", "", ingest.Page{Comments: comments("V2", 1)})
	w := &recordingWriter{}
	e := NewEngine(src, w, PolicyRetain, testLogger())

	res, err := e.Drain(context.Background(), []string{"V2"}, ingest.Progress{"OLD": "tokZ"})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	if !res.FullyDrained {
		t.Error("FullyDrained = false, want true (stale entry is not a candidate)")
	}
	if res.Progress["OLD"] != "tokZ" {
		t.Errorf("stale entry was cleared: %v", res.Progress)
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "", ingest.Page{Comments: comments("V1", 1), NextCursor: "tokA"})
	e := NewEngine(src, &recordingWriter{}, PolicyRetain, testLogger())

	in := ingest.Progress{}
	if _, err := e.Drain(context.Background(), []string{"V1"}, in); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if len(in) != 0 {
		t.Errorf("input progress mutated: %v", in)
	}
}

func TestEngine_FetchErrorPolicy(t *testing.T) {
	fetchErr := errors.New("quota exceeded")

	tests := []struct {
		name             string
		policy           FetchErrorPolicy
		progress         ingest.Progress
		wantFullyDrained bool
		wantCursor       ingest.Cursor
	}{
		{
			name:             "retain without entry blocks drain",
			policy:           PolicyRetain,
			progress:         ingest.Progress{},
			wantFullyDrained: false,
		},
		{
			name:             "retain keeps existing cursor",
			policy:           PolicyRetain,
			progress:         ingest.Progress{"V1": "tokA"},
			wantFullyDrained: false,
			wantCursor:       "tokA",
		},
		{
			name:             "abandon without entry counts as drained",
			policy:           PolicyAbandon,
			progress:         ingest.Progress{},
			wantFullyDrained: true,
		},
		{
			name:             "abandon with entry leaves it pending",
			policy:           PolicyAbandon,
			progress:         ingest.Progress{"V1": "tokA"},
			wantFullyDrained: false,
			wantCursor:       "tokA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := source.NewScripted().
				FailPage("V1", tt.progress.Cursor("V1"), fetchErr).
				AddPage("V2", "", ingest.Page{Comments: comments("V2", 2)})
			w := &recordingWriter{}
			e := NewEngine(src, w, tt.policy, testLogger())

			res, err := e.Drain(context.Background(), []string{"V1", "V2"}, tt.progress)
			if err != nil {
				t.Fatalf("Drain() error = %v", err)
			}

			if res.FullyDrained != tt.wantFullyDrained {
				t.Errorf("FullyDrained = %v, want %v", res.FullyDrained, tt.wantFullyDrained)
			}
			if got := res.Progress.Cursor("V1"); got != tt.wantCursor {
				t.Errorf("Progress[V1] = %q, want %q", got, tt.wantCursor)
			}
			if len(res.Comments) != 2 {
				t.Errorf("len(Comments) = %d, want 2 (other videos still drain)", len(res.Comments))
			}
			if len(w.saves) != 0 {
				t.Errorf("saves = %d, want 0", len(w.saves))
			}

			failed := res.Failed()
			if len(failed) != 1 || failed[0].VideoID != "V1" {
				t.Fatalf("Failed() = %v, want V1", failed)
			}
			var ferr *FetchError
			if !errors.As(failed[0].Err, &ferr) || !errors.Is(ferr, fetchErr) {
				t.Errorf("outcome error = %v, want FetchError wrapping %v", failed[0].Err, fetchErr)
			}
		})
	}
}

func TestEngine_SaveErrorAborts(t *testing.T) {
	src := source.NewScripted().
		AddPage("V1", "", ingest.Page{Comments: comments("V1", 1), NextCursor: "tokA"}).
		AddPage("V2", "", ingest.Page{Comments: comments("V2", 1)})
	saveErr := errors.New("bucket unavailable")
	e := NewEngine(src, &recordingWriter{err: saveErr}, PolicyRetain, testLogger())

	_, err := e.Drain(context.Background(), []string{"V1", "V2"}, ingest.Progress{})
	if !errors.Is(err, saveErr) {
		t.Fatalf("Drain() error = %v, want %v", err, saveErr)
	}
	if reqs := src.Requests(); len(reqs) != 1 {
		t.Errorf("requests = %d, want 1 (drain stops at the failed save)", len(reqs))
	}
}

func TestEngine_Idempotent(t *testing.T) {
	newSource := func() *source.Scripted {
		return source.NewScripted().
			AddPage("V1", "", ingest.Page{Comments: comments("V1", 3), NextCursor: "tokA"}).
			AddPage("V2", "", ingest.Page{Comments: comments("V2", 2)})
	}

	run := func() *Result {
		e := NewEngine(newSource(), &recordingWriter{}, PolicyRetain, testLogger())
		res, err := e.Drain(context.Background(), []string{"V1", "V2"}, ingest.Progress{})
		if err != nil {
			t.Fatalf("Drain() error = %v", err)
		}
		return res
	}

	first, second := run(), run()
	if first.FullyDrained != second.FullyDrained {
		t.Errorf("FullyDrained differs: %v vs %v", first.FullyDrained, second.FullyDrained)
	}
	if len(first.Progress) != len(second.Progress) || first.Progress["V1"] != second.Progress["V1"] {
		t.Errorf("Progress differs: %v vs %v", first.Progress, second.Progress)
	}
}

func TestParseFetchErrorPolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    FetchErrorPolicy
		wantErr bool
	}{
		{input: "", want: PolicyRetain},
		{input: "retain", want: PolicyRetain},
		{input: " ABANDON ", want: PolicyAbandon},
		{input: "ignore", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFetchErrorPolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFetchErrorPolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFetchErrorPolicy(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
