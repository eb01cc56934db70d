package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/easeaico/project-nudge/internal/types"
)

type fakeStore struct {
	entries   []types.MemoryEntry
	similar   int
	vecCalls  int
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) Append(_ context.Context, entry types.MemoryEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string) ([]types.MemoryEntry, error) {
	var out []types.MemoryEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (types.MemoryEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return types.MemoryEntry{}, ErrNotFound
}

func (f *fakeStore) UpdateContent(_ context.Context, id, content string) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Content = content
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) error {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

type vectorStore struct {
	*fakeStore
}

func (v vectorStore) CountSimilar(context.Context, string, []float32, float64) (int, error) {
	v.vecCalls++
	return v.similar, nil
}

func TestComputeSalience(t *testing.T) {
	// 25 runes / 50 + 0.5*2 + 0.2*2
	got := ComputeSalience("héllo wörld, how are you?", 0.5, []string{"a", "b"})
	if math.Abs(got-1.9) > 1e-9 {
		t.Fatalf("expected 1.9, got %v", got)
	}
}

func TestRepetitionScoreSaturates(t *testing.T) {
	cases := map[int]float64{0: 0, 1: 0.2, 4: 0.8, 5: 1, 9: 1}
	for dup, want := range cases {
		if got := RepetitionScore(dup); math.Abs(got-want) > 1e-9 {
			t.Fatalf("RepetitionScore(%d) = %v, want %v", dup, got, want)
		}
	}
}

func TestCountNearDuplicates(t *testing.T) {
	history := []types.MemoryEntry{
		{Sender: types.SenderUser, Content: "I'll do it LATER!"},
		{Sender: types.SenderUser, Content: "i’ll do it later"},
		{Sender: types.SenderAgent, Content: "I'll do it later"},
		{Sender: types.SenderUser, Content: "something else entirely"},
		{Sender: types.SenderUser, Content: "unrelated words", Embedding: []float32{1, 0}},
	}
	if got := CountNearDuplicates("i'll do it later", []float32{0.99, 0.05}, history); got != 3 {
		t.Fatalf("expected 3 duplicates (2 textual, 1 semantic), got %d", got)
	}
}

func TestServiceRecordScoresAndReturnsHistory(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		rec, err := svc.Record(ctx, Draft{
			UserID:  "u1",
			Content: "maybe tomorrow",
			Sender:  types.SenderUser,
			Signal:  types.Signal{Emotion: "neutral", Intensity: 0.3, TopicTags: []string{"career"}},
		})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
		if len(rec.History) != i {
			t.Fatalf("expected %d prior entries, got %d", i, len(rec.History))
		}
		want := math.Min(float64(i)/5, 1)
		if math.Abs(rec.Entry.RepetitionScore-want) > 1e-9 {
			t.Fatalf("message %d: expected repetition %v, got %v", i, want, rec.Entry.RepetitionScore)
		}
	}

	first := store.entries[0]
	if first.ID == "" || !first.Timestamp.Equal(now) || first.Emotion != "neutral" {
		t.Fatalf("unexpected stored entry %+v", first)
	}
	if first.ID >= store.entries[1].ID {
		t.Fatalf("expected monotonic ids, got %s then %s", first.ID, store.entries[1].ID)
	}
}

func TestServiceRecordAgentHasNoRepetition(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec, err := svc.Record(ctx, Draft{UserID: "u1", Content: "ok", Sender: types.SenderAgent})
		if err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
		if rec.Entry.RepetitionScore != 0 {
			t.Fatalf("agent messages should not accumulate repetition")
		}
	}
}

func TestServiceRecordUsesVectorCount(t *testing.T) {
	base := newFakeStore()
	base.similar = 3
	svc := NewService(vectorStore{base})
	rec, err := svc.Record(context.Background(), Draft{
		UserID: "u1", Content: "novel text", Sender: types.SenderUser, Embedding: []float32{1, 2},
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if math.Abs(rec.Entry.RepetitionScore-0.6) > 1e-9 {
		t.Fatalf("expected repetition from vector count, got %v", rec.Entry.RepetitionScore)
	}
	if base.vecCalls != 1 {
		t.Fatalf("expected one vector count call, got %d", base.vecCalls)
	}
}

func TestServiceRecordValidation(t *testing.T) {
	svc := NewService(newFakeStore())
	if _, err := svc.Record(context.Background(), Draft{Content: "x", Sender: types.SenderUser}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
	if _, err := svc.Record(context.Background(), Draft{UserID: "u", Content: "x", Sender: "bot"}); err == nil {
		t.Fatalf("expected error for invalid sender")
	}

	failing := newFakeStore()
	failing.appendErr = errors.New("disk full")
	if _, err := NewService(failing).Record(context.Background(), Draft{UserID: "u", Content: "x", Sender: types.SenderUser}); err == nil {
		t.Fatalf("expected append error to surface")
	}
}

func TestServiceEditKeepsScores(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	rec, err := svc.Record(context.Background(), Draft{UserID: "u1", Content: "first draft", Sender: types.SenderUser, Signal: types.Signal{Intensity: 0.9}})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	edited, err := svc.Edit(context.Background(), rec.Entry.ID, "final words here")
	if err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}
	if edited.ID != rec.Entry.ID || edited.Content != "final words here" || edited.Salience != rec.Entry.Salience {
		t.Fatalf("edit changed more than content: %+v vs %+v", edited, rec.Entry)
	}
	if _, err := svc.Edit(context.Background(), "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
