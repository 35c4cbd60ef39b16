// Package asset manages the profile picture side channel.
//
// Uploads and removals take effect immediately and are never staged with an
// account patch, so cancelling an account edit does not undo them.
package asset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/pkg/metrics"
	"tenantdesk.io/console/internal/settings"
)

var (
	ErrEmpty           = errors.New("file is empty")
	ErrTooLarge        = errors.New("file exceeds upload limit")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNoAsset         = errors.New("no profile picture")
)

// Ref points at a stored profile picture.
type Ref struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// URLFor is the public address of a stored picture. The asset id busts caches.
func URLFor(userID int64, assetID string) string {
	return fmt.Sprintf("/api/v1/users/%d/pfp?v=%s", userID, assetID)
}

// Store persists profile pictures.
type Store interface {
	// UploadPfp stores data as the user's picture, superseding any previous one.
	UploadPfp(ctx context.Context, userID int64, data []byte, contentType string) (Ref, error)
	RemovePfp(ctx context.Context, userID int64) error
	// FetchPfp returns the current picture, or nil when there is none.
	FetchPfp(ctx context.Context, userID int64) (*Ref, error)
	// ReadPfp returns the current picture and its bytes.
	ReadPfp(ctx context.Context, userID int64) (Ref, []byte, error)
}

// Options bound what Upload accepts.
type Options struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Store   Store
	Notices notification.Sink
	Events  *domain.EventDispatcher
	Options Options
}

// Controller manages one user's profile picture.
type Controller struct {
	userID int64
	deps   Deps
	log    *zap.Logger

	mu      sync.Mutex
	current *Ref
}

// NewController creates a controller for userID with no known picture.
func NewController(userID int64, deps Deps) *Controller {
	if deps.Notices == nil {
		deps.Notices = notification.Discard{}
	}
	return &Controller{
		userID: userID,
		deps:   deps,
		log:    logger.Named("asset").With(zap.Int64("user_id", userID)),
	}
}

// Load refreshes Current from the store.
func (c *Controller) Load(ctx context.Context) error {
	ref, err := c.Fetch(ctx, c.userID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = ref
	c.mu.Unlock()
	return nil
}

// Current returns the last known picture, or nil.
func (c *Controller) Current() *Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	ref := *c.current
	return &ref
}

// Upload validates and stores data, then refetches the reference.
// On failure Current is left untouched.
func (c *Controller) Upload(ctx context.Context, data []byte) (Ref, error) {
	ref, contentType, err := c.upload(ctx, data)
	if err != nil {
		aerr := &settings.AssetError{Op: "upload", Err: err}
		metrics.AssetOperationsTotal.WithLabelValues("upload", metrics.ResultFailure).Inc()
		c.deps.Notices.Notify(ctx, notification.PfpUploadFailed(err))
		c.log.Info("Profile picture upload failed", zap.Error(err))
		return Ref{}, aerr
	}

	c.mu.Lock()
	c.current = &ref
	c.mu.Unlock()

	metrics.AssetOperationsTotal.WithLabelValues("upload", metrics.ResultSuccess).Inc()
	c.deps.Notices.Notify(ctx, notification.PfpUploaded())
	c.dispatch(ctx, domain.ProfileAssetPayload{
		UserID:      c.userID,
		Operation:   "upload",
		AssetID:     ref.ID,
		ContentType: contentType,
	})
	return ref, nil
}

func (c *Controller) upload(ctx context.Context, data []byte) (Ref, string, error) {
	if len(data) == 0 {
		return Ref{}, "", ErrEmpty
	}
	if limit := c.deps.Options.MaxBytes; limit > 0 && int64(len(data)) > limit {
		return Ref{}, "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), limit)
	}
	mtype := mimetype.Detect(data)
	if !c.allowed(mtype) {
		return Ref{}, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	contentType := mtype.String()

	ref, err := c.deps.Store.UploadPfp(ctx, c.userID, data, contentType)
	if err != nil {
		return Ref{}, "", err
	}
	// The picture is live once UploadPfp returns; the refetch only picks up
	// server-side fields such as a cache-busting URL.
	fresh, err := c.deps.Store.FetchPfp(ctx, c.userID)
	switch {
	case err != nil:
		c.log.Warn("Refetch after upload failed, using upload result", zap.Error(err))
	case fresh != nil:
		ref = *fresh
	}
	return ref, contentType, nil
}

func (c *Controller) allowed(mtype *mimetype.MIME) bool {
	if !strings.HasPrefix(mtype.String(), "image/") {
		return false
	}
	if len(c.deps.Options.AllowedTypes) == 0 {
		return true
	}
	for _, t := range c.deps.Options.AllowedTypes {
		if mtype.Is(t) {
			return true
		}
	}
	return false
}

// Remove deletes the picture. On failure Current is left untouched.
func (c *Controller) Remove(ctx context.Context) error {
	if err := c.deps.Store.RemovePfp(ctx, c.userID); err != nil {
		metrics.AssetOperationsTotal.WithLabelValues("remove", metrics.ResultFailure).Inc()
		c.deps.Notices.Notify(ctx, notification.PfpRemoveFailed(err))
		c.log.Info("Profile picture removal failed", zap.Error(err))
		return &settings.AssetError{Op: "remove", Err: err}
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	metrics.AssetOperationsTotal.WithLabelValues("remove", metrics.ResultSuccess).Inc()
	c.deps.Notices.Notify(ctx, notification.PfpRemoved())
	c.dispatch(ctx, domain.ProfileAssetPayload{UserID: c.userID, Operation: "remove"})
	return nil
}

// Fetch returns the picture of any subject, or nil when none is stored.
func (c *Controller) Fetch(ctx context.Context, subjectID int64) (*Ref, error) {
	ref, err := c.deps.Store.FetchPfp(ctx, subjectID)
	if err != nil {
		return nil, &settings.AssetError{Op: "fetch", Err: err}
	}
	return ref, nil
}

func (c *Controller) dispatch(ctx context.Context, payload domain.ProfileAssetPayload) {
	if c.deps.Events == nil {
		return
	}
	id := strconv.FormatInt(c.userID, 10)
	ev, err := domain.NewEvent(domain.EventProfileAssetChanged, domain.AggregateAsset, id, id, payload)
	if err != nil {
		c.log.Warn("Build domain event failed", zap.Error(err))
		return
	}
	if err := c.deps.Events.Dispatch(ctx, ev); err != nil {
		c.log.Warn("Dispatch domain event failed", zap.Error(err))
	}
}
