package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tenantdesk.io/console/internal/asset"
)

// AssetRepository stores profile pictures in profile_assets. A user has at
// most one live row; older rows are marked superseded and purged later.
type AssetRepository struct {
	db Beginner
}

func NewAssetRepository(db Beginner) *AssetRepository {
	return &AssetRepository{db: db}
}

// UploadPfp supersedes the live picture and inserts data in one transaction.
func (r *AssetRepository) UploadPfp(ctx context.Context, userID int64, data []byte, contentType string) (asset.Ref, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return asset.Ref{}, fmt.Errorf("generate asset id: %w", err)
	}

	var createdAt time.Time
	err = inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE profile_assets SET superseded_at = NOW()
			WHERE user_id = $1 AND superseded_at IS NULL`, userID); err != nil {
			return fmt.Errorf("supersede picture: %w", err)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO profile_assets (id, user_id, content_type, size_bytes, data)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			id, userID, contentType, int64(len(data)), data,
		).Scan(&createdAt)
	})
	if err != nil {
		return asset.Ref{}, fmt.Errorf("upload picture for user %d: %w", userID, err)
	}

	return asset.Ref{
		ID:          id.String(),
		UserID:      userID,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         asset.URLFor(userID, id.String()),
		CreatedAt:   createdAt,
	}, nil
}

// RemovePfp supersedes the live picture. Removing nothing succeeds.
func (r *AssetRepository) RemovePfp(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE profile_assets SET superseded_at = NOW()
		WHERE user_id = $1 AND superseded_at IS NULL`, userID); err != nil {
		return fmt.Errorf("remove picture for user %d: %w", userID, err)
	}
	return nil
}

// FetchPfp returns the live picture, or nil when there is none.
func (r *AssetRepository) FetchPfp(ctx context.Context, userID int64) (*asset.Ref, error) {
	ref, err := scanRef(userID, r.db.QueryRow(ctx, `
		SELECT id, content_type, size_bytes, created_at
		FROM profile_assets
		WHERE user_id = $1 AND superseded_at IS NULL`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch picture for user %d: %w", userID, err)
	}
	return &ref, nil
}

// ReadPfp returns the live picture with its bytes.
func (r *AssetRepository) ReadPfp(ctx context.Context, userID int64) (asset.Ref, []byte, error) {
	var (
		id   uuid.UUID
		ref  = asset.Ref{UserID: userID}
		data []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, content_type, size_bytes, created_at, data
		FROM profile_assets
		WHERE user_id = $1 AND superseded_at IS NULL`, userID,
	).Scan(&id, &ref.ContentType, &ref.Size, &ref.CreatedAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return asset.Ref{}, nil, asset.ErrNoAsset
	}
	if err != nil {
		return asset.Ref{}, nil, fmt.Errorf("read picture for user %d: %w", userID, err)
	}
	ref.ID = id.String()
	ref.URL = asset.URLFor(userID, ref.ID)
	return ref, data, nil
}

// PurgeSuperseded deletes pictures superseded before cutoff.
func (r *AssetRepository) PurgeSuperseded(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM profile_assets
		WHERE superseded_at IS NOT NULL AND superseded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge superseded pictures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRef(userID int64, row pgx.Row) (asset.Ref, error) {
	var (
		id  uuid.UUID
		ref = asset.Ref{UserID: userID}
	)
	if err := row.Scan(&id, &ref.ContentType, &ref.Size, &ref.CreatedAt); err != nil {
		return asset.Ref{}, err
	}
	ref.ID = id.String()
	ref.URL = asset.URLFor(userID, ref.ID)
	return ref, nil
}
