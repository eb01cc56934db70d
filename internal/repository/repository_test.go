package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

func TestEntryModelRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	entry := types.MemoryEntry{
		ID:                 "01J0000000000000000000000A",
		UserID:             "u1",
		Content:            "I need to finish my thesis",
		Sender:             types.SenderUser,
		Timestamp:          ts,
		Emotion:            "anxiety",
		EmotionalIntensity: 0.7,
		Salience:           1.92,
		RepetitionScore:    0.2,
		TopicTags:          []string{"education"},
		TaskReference:      "finish my thesis",
		Embedding:          []float32{0.1, 0.2},
	}
	record, err := entryToModel(entry)
	if err != nil {
		t.Fatalf("entryToModel returned error: %v", err)
	}
	got := entryFromModel(record)
	if got.Content != entry.Content || !got.Timestamp.Equal(ts) || got.TopicTags[0] != "education" || len(got.Embedding) != 2 {
		t.Fatalf("unexpected round trip %+v", got)
	}
}

func TestEntryModelZeroTimestamp(t *testing.T) {
	record, err := entryToModel(types.MemoryEntry{ID: "x", UserID: "u1", Sender: types.SenderAgent})
	if err != nil {
		t.Fatalf("entryToModel returned error: %v", err)
	}
	if record.Timestamp != nil || record.Embedding != nil || record.TopicTags != nil {
		t.Fatalf("expected null columns, got %+v", record)
	}
	if got := entryFromModel(record); !got.Timestamp.IsZero() {
		t.Fatalf("expected zero timestamp, got %v", got.Timestamp)
	}
}

func TestDecodeTraitsKeepsIntegers(t *testing.T) {
	tr, err := decodeTraits([]byte(`{"retreat_count":2,"safe_space_mode":true,"common_excuses_list":["no time"]}`))
	if err != nil {
		t.Fatalf("decodeTraits returned error: %v", err)
	}
	if tr.Int(traits.KeyRetreatCount) != 2 || !tr.Bool(traits.KeySafeSpaceMode) || len(tr.Strings(traits.KeyCommonExcuses)) != 1 {
		t.Fatalf("unexpected traits %v", tr)
	}
}

func TestMapConflict(t *testing.T) {
	serial := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	if !errors.Is(mapConflict(serial), traits.ErrConflict) {
		t.Fatalf("expected serialization failure to map to ErrConflict")
	}
	other := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	if errors.Is(mapConflict(other), traits.ErrConflict) {
		t.Fatalf("unique violation must not map to ErrConflict")
	}
}
