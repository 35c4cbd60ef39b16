package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// SystemConfigRepository stores system secrets such as OAuth client ids.
type SystemConfigRepository struct {
	db Beginner
}

func NewSystemConfigRepository(db Beginner) *SystemConfigRepository {
	return &SystemConfigRepository{db: db}
}

// UpdateSystem upserts values in one transaction. An empty value clears the secret.
func (r *SystemConfigRepository) UpdateSystem(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, k := range keys {
			if _, err := tx.Exec(ctx, `
				INSERT INTO system_secrets (key, value)
				VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE
				SET value = EXCLUDED.value,
					updated_at = NOW()`, k, values[k]); err != nil {
				return fmt.Errorf("upsert system secret %s: %w", k, err)
			}
		}
		return nil
	})
}

// Get returns the secret stored under key, or "" when unset.
func (r *SystemConfigRepository) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRow(ctx, `SELECT value FROM system_secrets WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read system secret %s: %w", key, err)
	}
	return v, nil
}
