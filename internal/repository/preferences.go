package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// ErrUnknownPreference is returned for keys outside the repository's allow list.
var ErrUnknownPreference = errors.New("unknown preference key")

// PreferenceRepository stores system preferences as JSONB values keyed by
// name. Only allow-listed keys can be written.
type PreferenceRepository struct {
	db      Beginner
	allowed map[string]struct{}
}

// NewPreferenceRepository creates a repository accepting keys.
func NewPreferenceRepository(db Beginner, keys []string) *PreferenceRepository {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return &PreferenceRepository{db: db, allowed: allowed}
}

// GetByFields returns the stored values for names. Missing keys are absent.
func (r *PreferenceRepository) GetByFields(ctx context.Context, names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT key, value FROM system_preferences WHERE key = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode preference %s: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// UpdatePreferences upserts every key of patch in one transaction.
func (r *PreferenceRepository) UpdatePreferences(ctx context.Context, patch map[string]any) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := r.allowed[k]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPreference, k)
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	batch := &pgx.Batch{}
	for _, k := range keys {
		raw, err := json.Marshal(patch[k])
		if err != nil {
			return fmt.Errorf("encode preference %s: %w", k, err)
		}
		batch.Queue(`
			INSERT INTO system_preferences (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value,
				updated_at = NOW()`, k, raw)
	}

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert preferences: %w", err)
		}
		return nil
	})
}
