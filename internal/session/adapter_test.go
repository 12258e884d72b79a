package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/storefront/internal/model"
)

// --- モック定義 ---

type mockFetcher struct {
	getUserFn func(ctx context.Context, externalID string) (*model.ProviderUser, error)
	calls     int
}

func (m *mockFetcher) GetUser(ctx context.Context, externalID string) (*model.ProviderUser, error) {
	m.calls++
	return m.getUserFn(ctx, externalID)
}

type mockSyncer struct {
	syncFn func(ctx context.Context, pu model.ProviderUser) (*model.User, error)
}

func (m *mockSyncer) SyncProviderUser(ctx context.Context, pu model.ProviderUser) (*model.User, error) {
	return m.syncFn(ctx, pu)
}

type mockFinder struct {
	findFn func(ctx context.Context, externalID string) (*model.User, error)
}

func (m *mockFinder) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return m.findFn(ctx, externalID)
}

type countingRecorder struct {
	failures map[string]int
}

func (c *countingRecorder) RecordSessionSyncFailure(operation string) {
	if c.failures == nil {
		c.failures = map[string]int{}
	}
	c.failures[operation]++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestAdapter_SyncCurrentSession_LoggedOut(t *testing.T) {
	fetcher := &mockFetcher{}
	a := NewAdapter(fetcher, nil, nil, quietLogger(), nil)

	out := a.SyncCurrentSession(context.Background(), "")

	assert.Nil(t, out.User)
	assert.NoError(t, out.Err)
	assert.Equal(t, 0, fetcher.calls)
}

func TestAdapter_SyncCurrentSession_Success(t *testing.T) {
	fetcher := &mockFetcher{getUserFn: func(_ context.Context, id string) (*model.ProviderUser, error) {
		return &model.ProviderUser{ID: id, FirstName: "Ada"}, nil
	}}
	var synced model.ProviderUser
	syncer := &mockSyncer{syncFn: func(_ context.Context, pu model.ProviderUser) (*model.User, error) {
		synced = pu
		return &model.User{ID: "id-1", ExternalID: pu.ID}, nil
	}}

	a := NewAdapter(fetcher, syncer, nil, quietLogger(), nil)
	out := a.SyncCurrentSession(context.Background(), "user_1")

	assert.NoError(t, out.Err)
	assert.Equal(t, "user_1", out.User.ExternalID)
	assert.Equal(t, "Ada", synced.FirstName)
}

func TestAdapter_SyncCurrentSession_FailuresAreAbsorbed(t *testing.T) {
	storeErr := fmt.Errorf("%w: duplicate email", model.ErrPersistence)
	providerErr := errors.New("provider down")

	tests := []struct {
		name    string
		fetchFn func(context.Context, string) (*model.ProviderUser, error)
		syncFn  func(context.Context, model.ProviderUser) (*model.User, error)
		wantErr error
	}{
		{
			name:    "provider failure",
			fetchFn: func(context.Context, string) (*model.ProviderUser, error) { return nil, providerErr },
			wantErr: providerErr,
		},
		{
			name: "store failure",
			fetchFn: func(_ context.Context, id string) (*model.ProviderUser, error) {
				return &model.ProviderUser{ID: id}, nil
			},
			syncFn:  func(context.Context, model.ProviderUser) (*model.User, error) { return nil, storeErr },
			wantErr: model.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			a := NewAdapter(&mockFetcher{getUserFn: tt.fetchFn}, &mockSyncer{syncFn: tt.syncFn}, nil, quietLogger(), rec)

			out := a.SyncCurrentSession(context.Background(), "user_1")

			assert.Nil(t, out.User)
			assert.ErrorIs(t, out.Err, tt.wantErr)
			assert.Equal(t, 1, rec.failures["sync"])
		})
	}
}

func TestAdapter_GetCurrentUser(t *testing.T) {
	t.Run("logged out", func(t *testing.T) {
		a := NewAdapter(nil, nil, nil, quietLogger(), nil)
		out := a.GetCurrentUser(context.Background(), "")
		assert.Nil(t, out.User)
		assert.NoError(t, out.Err)
	})

	t.Run("found", func(t *testing.T) {
		finder := &mockFinder{findFn: func(_ context.Context, id string) (*model.User, error) {
			return &model.User{ExternalID: id, Email: "a@example.com"}, nil
		}}
		a := NewAdapter(nil, nil, finder, quietLogger(), nil)
		out := a.GetCurrentUser(context.Background(), "user_1")
		assert.NoError(t, out.Err)
		assert.Equal(t, "a@example.com", out.User.Email)
	})

	t.Run("absent", func(t *testing.T) {
		finder := &mockFinder{findFn: func(context.Context, string) (*model.User, error) { return nil, nil }}
		a := NewAdapter(nil, nil, finder, quietLogger(), nil)
		out := a.GetCurrentUser(context.Background(), "user_1")
		assert.Nil(t, out.User)
		assert.NoError(t, out.Err)
	})

	t.Run("store error absorbed", func(t *testing.T) {
		rec := &countingRecorder{}
		finder := &mockFinder{findFn: func(context.Context, string) (*model.User, error) {
			return nil, fmt.Errorf("%w: refused", model.ErrConnection)
		}}
		a := NewAdapter(nil, nil, finder, quietLogger(), rec)
		out := a.GetCurrentUser(context.Background(), "user_1")
		assert.Nil(t, out.User)
		assert.ErrorIs(t, out.Err, model.ErrConnection)
		assert.Equal(t, 1, rec.failures["lookup"])
	})
}
