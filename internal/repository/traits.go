package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/project-nudge/internal/traits"
)

// userTraitModel maps to the user_traits table. All traits of a user live in one JSONB document.
type userTraitModel struct {
	UserID    string          `gorm:"primaryKey"`
	Data      json.RawMessage `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (userTraitModel) TableName() string {
	return "user_traits"
}

// TraitRepo implements traits.Ledger. Every write runs in a serializable transaction; a
// serialization failure surfaces as traits.ErrConflict.
type TraitRepo struct {
	db *gorm.DB
}

// NewTraitRepo returns a TraitRepo.
func NewTraitRepo(db *gorm.DB) *TraitRepo {
	return &TraitRepo{db: db}
}

func (r *TraitRepo) Read(ctx context.Context, userID string) (traits.Traits, error) {
	tr, err := loadTraits(r.db.WithContext(ctx), userID, false)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (r *TraitRepo) Update(ctx context.Context, userID, key string, value any) error {
	return r.Merge(ctx, userID, map[string]any{key: value})
}

func (r *TraitRepo) Merge(ctx context.Context, userID string, values map[string]any) error {
	return r.mutate(ctx, userID, func(current traits.Traits) {
		for k, v := range values {
			current[k] = traits.Normalize(v)
		}
	})
}

func (r *TraitRepo) Union(ctx context.Context, userID, key string, values ...string) error {
	return r.mutate(ctx, userID, func(current traits.Traits) {
		current[key] = traits.UnionStrings(current.Strings(key), values...)
	})
}

func (r *TraitRepo) Reset(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&userTraitModel{}).Error
		if err != nil {
			return fmt.Errorf("failed to reset traits: %w", mapConflict(err))
		}
		return nil
	}
	return r.mutate(ctx, userID, func(current traits.Traits) {
		for _, k := range keys {
			delete(current, k)
		}
	})
}

func (r *TraitRepo) mutate(ctx context.Context, userID string, apply func(traits.Traits)) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := loadTraits(tx, userID, true)
		if err != nil {
			return err
		}
		apply(current)
		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to encode traits: %w", err)
		}
		record := userTraitModel{UserID: userID, Data: data, UpdatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&record).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to write traits: %w", mapConflict(err))
	}
	return nil
}

func loadTraits(db *gorm.DB, userID string, forUpdate bool) (traits.Traits, error) {
	query := db.Where("user_id = ?", userID)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record userTraitModel
	err := query.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return traits.Traits{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load traits: %w", mapConflict(err))
	}
	return decodeTraits(record.Data)
}

func decodeTraits(data json.RawMessage) (traits.Traits, error) {
	tr := traits.Traits{}
	if len(data) == 0 {
		return tr, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode traits: %w", err)
	}
	return tr, nil
}

// Serialization failure and deadlock.
var conflictCodes = map[string]bool{"40001": true, "40P01": true}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", traits.ErrConflict, pgErr.Message)
	}
	return err
}
