package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/types"
)

// memoryEntryModel maps to the memory_entries table.
type memoryEntryModel struct {
	ID      string `gorm:"primaryKey;size:26"`
	UserID  string `gorm:"index:idx_memory_entries_user_ts,priority:1;not null"`
	Content string `gorm:"not null"`
	Sender  string `gorm:"size:16;not null"`
	// Timestamp is nullable; missing values rank as fully decayed.
	Timestamp          *time.Time `gorm:"index:idx_memory_entries_user_ts,priority:2"`
	Emotion            string
	EmotionalIntensity float64
	Salience           float64
	RepetitionScore    float64
	TopicTags          json.RawMessage `gorm:"type:jsonb"`
	TaskReference      string
	ReplyToID          string `gorm:"size:26"`
	// Embedding stores the vector used for near-duplicate counting.
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt time.Time
}

func (memoryEntryModel) TableName() string {
	return "memory_entries"
}

// MemoryRepo implements memory.Store and memory.SimilarityCounter.
type MemoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a MemoryRepo.
func NewMemoryRepo(db *gorm.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Append(ctx context.Context, entry types.MemoryEntry) error {
	record, err := entryToModel(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory entry: %w", err)
	}
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]types.MemoryEntry, error) {
	var records []memoryEntryModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp ASC NULLS FIRST").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query memory entries: %w", err)
	}
	results := make([]types.MemoryEntry, 0, len(records))
	for _, record := range records {
		results = append(results, entryFromModel(record))
	}
	return results, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (types.MemoryEntry, error) {
	var record memoryEntryModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.MemoryEntry{}, memory.ErrNotFound
	}
	if err != nil {
		return types.MemoryEntry{}, fmt.Errorf("failed to get memory entry: %w", err)
	}
	return entryFromModel(record), nil
}

func (r *MemoryRepo) UpdateContent(ctx context.Context, id, content string) error {
	res := r.db.WithContext(ctx).Model(&memoryEntryModel{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("failed to update memory entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return memory.ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&memoryEntryModel{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete memory entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return memory.ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) DeleteUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&memoryEntryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete user memory entries: %w", err)
	}
	return nil
}

// CountSimilar counts the user's earlier messages whose embedding has cosine similarity of at
// least threshold with embedding.
func (r *MemoryRepo) CountSimilar(ctx context.Context, userID string, embedding []float32, threshold float64) (int, error) {
	if len(embedding) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM memory_entries
		WHERE user_id = ? AND sender = ? AND embedding IS NOT NULL
		  AND 1 - (embedding <=> ?) >= ?`,
		userID, string(types.SenderUser), pgvector.NewVector(embedding), threshold,
	).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count similar memory entries: %w", err)
	}
	return int(count), nil
}

func entryToModel(entry types.MemoryEntry) (memoryEntryModel, error) {
	tags, err := marshalJSON(entry.TopicTags)
	if err != nil {
		return memoryEntryModel{}, fmt.Errorf("failed to encode topic tags: %w", err)
	}
	record := memoryEntryModel{
		ID:                 entry.ID,
		UserID:             entry.UserID,
		Content:            entry.Content,
		Sender:             string(entry.Sender),
		Emotion:            entry.Emotion,
		EmotionalIntensity: entry.EmotionalIntensity,
		Salience:           entry.Salience,
		RepetitionScore:    entry.RepetitionScore,
		TopicTags:          tags,
		TaskReference:      entry.TaskReference,
		ReplyToID:          entry.ReplyToID,
	}
	if !entry.Timestamp.IsZero() {
		ts := entry.Timestamp.UTC()
		record.Timestamp = &ts
	}
	if len(entry.Embedding) > 0 {
		v := pgvector.NewVector(entry.Embedding)
		record.Embedding = &v
	}
	return record, nil
}

// entryFromModel converts database model to domain struct.
func entryFromModel(model memoryEntryModel) types.MemoryEntry {
	var tags []string
	_ = unmarshalJSON(model.TopicTags, &tags)
	entry := types.MemoryEntry{
		ID:                 model.ID,
		UserID:             model.UserID,
		Content:            model.Content,
		Sender:             types.Sender(model.Sender),
		Emotion:            model.Emotion,
		EmotionalIntensity: model.EmotionalIntensity,
		Salience:           model.Salience,
		RepetitionScore:    model.RepetitionScore,
		TopicTags:          tags,
		TaskReference:      model.TaskReference,
		ReplyToID:          model.ReplyToID,
	}
	if model.Timestamp != nil {
		entry.Timestamp = *model.Timestamp
	}
	if model.Embedding != nil {
		entry.Embedding = model.Embedding.Slice()
	}
	return entry
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
