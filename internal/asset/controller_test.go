package asset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/settings"
)

func init() {
	_ = logger.Init("error", "json")
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type fakeStore struct {
	mu        sync.Mutex
	refs      map[int64]*Ref
	uploadErr error
	removeErr error
	fetchErr  error
	uploads   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{refs: map[int64]*Ref{}}
}

func (s *fakeStore) UploadPfp(_ context.Context, userID int64, data []byte, contentType string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return Ref{}, s.uploadErr
	}
	s.uploads++
	ref := Ref{ID: "asset-1", UserID: userID, ContentType: contentType, Size: int64(len(data)), URL: "/api/v1/users/7/pfp", CreatedAt: time.Now()}
	s.refs[userID] = &ref
	return ref, nil
}

func (s *fakeStore) RemovePfp(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.refs, userID)
	return nil
}

func (s *fakeStore) FetchPfp(_ context.Context, userID int64) (*Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	ref, ok := s.refs[userID]
	if !ok {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

func (s *fakeStore) ReadPfp(_ context.Context, userID int64) (Ref, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[userID]
	if !ok {
		return Ref{}, nil, ErrNoAsset
	}
	return *ref, pngBytes, nil
}

func newController(store *fakeStore) *Controller {
	return NewController(7, Deps{
		Store:   store,
		Notices: notification.ContextSink{},
		Options: Options{MaxBytes: 1024, AllowedTypes: []string{"image/png", "image/jpeg"}},
	})
}

func TestController_Upload(t *testing.T) {
	store := newFakeStore()
	c := newController(store)
	ctx, notices := notification.WithCollector(context.Background())

	ref, err := c.Upload(ctx, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ref.ContentType)
	require.NotNil(t, c.Current())
	assert.Equal(t, "asset-1", c.Current().ID)
	assert.Equal(t, []notification.Notice{notification.PfpUploaded()}, notices.Notices())
}

func TestController_UploadSucceedsWhenRefetchFails(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = errors.New("read replica lagging")
	c := newController(store)
	ctx, notices := notification.WithCollector(context.Background())

	ref, err := c.Upload(ctx, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "asset-1", ref.ID)
	assert.Equal(t, 1, store.uploads)
	require.NotNil(t, c.Current())
	assert.Equal(t, "asset-1", c.Current().ID)
	assert.Equal(t, []notification.Notice{notification.PfpUploaded()}, notices.Notices())
}

func TestController_UploadRejections(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"too large", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...), ErrTooLarge},
		{"not an image", []byte("hello, plain text"), ErrUnsupportedType},
		{"image outside allow list", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"), ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			c := newController(store)
			ctx, notices := notification.WithCollector(context.Background())

			_, err := c.Upload(ctx, tt.data)
			var aerr *settings.AssetError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, "upload", aerr.Op)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, c.Current())
			assert.Equal(t, 0, store.uploads)
			require.Len(t, notices.Notices(), 1)
			assert.Equal(t, notification.LevelError, notices.Notices()[0].Level)
		})
	}
}

func TestController_FailureKeepsCurrent(t *testing.T) {
	store := newFakeStore()
	c := newController(store)
	ctx := context.Background()
	_, err := c.Upload(ctx, pngBytes)
	require.NoError(t, err)
	before := c.Current()

	store.uploadErr = errors.New("disk full")
	_, err = c.Upload(ctx, pngBytes)
	require.Error(t, err)
	assert.Equal(t, before, c.Current())

	store.removeErr = errors.New("backend down")
	err = c.Remove(ctx)
	var aerr *settings.AssetError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "remove", aerr.Op)
	assert.Equal(t, before, c.Current())

	store.removeErr = nil
	require.NoError(t, c.Remove(ctx))
	assert.Nil(t, c.Current())
}

func TestController_LoadAndFetch(t *testing.T) {
	store := newFakeStore()
	store.refs[7] = &Ref{ID: "existing", UserID: 7}
	c := newController(store)

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, "existing", c.Current().ID)

	ref, err := c.Fetch(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

type staticUsers struct {
	subject *domain.AccountSubject
	updates int
}

func (u *staticUsers) FetchUser(context.Context, int64) (*domain.AccountSubject, error) {
	return u.subject.Clone(), nil
}

func (u *staticUsers) UpdateUser(context.Context, int64, settings.PendingPatch) error {
	u.updates++
	return nil
}

func TestController_IndependentOfPendingAccountEdit(t *testing.T) {
	users := &staticUsers{subject: &domain.AccountSubject{ID: 7, Username: "abc", Role: domain.RoleDefault}}
	flow := account.NewSelfFlow(account.Deps{Users: users, Languages: []string{"en"}})
	edit, err := flow.Open(context.Background(), 7)
	require.NoError(t, err)
	defer edit.Close()
	require.NoError(t, edit.Stage(account.Form{Fields: []settings.Field{settings.NewField("username", "abcd")}}))

	c := newController(newFakeStore())
	_, err = c.Upload(context.Background(), pngBytes)
	require.NoError(t, err)

	assert.True(t, edit.Coordinator.HasChanges(), "upload must not flush the pending edit")
	assert.Equal(t, 0, users.updates)

	require.NoError(t, edit.Coordinator.Cancel())
	assert.NotNil(t, c.Current(), "cancelling the edit does not undo the upload")

	require.NoError(t, edit.Stage(account.Form{Fields: []settings.Field{settings.NewField("username", "abcd")}}))
	patch, err := edit.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.PendingPatch{"username": "abcd"}, patch)
}
