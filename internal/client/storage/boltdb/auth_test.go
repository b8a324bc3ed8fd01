package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/meetsync/internal/client/storage"
)

func TestStorage_AuthLifecycle(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)

	auth := &storage.AuthData{
		Username:    "chair",
		UserID:      7,
		AccessToken: "token-7",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}
	require.NoError(t, store.SaveAuth(ctx, auth))

	got, err := store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth, got)

	// повторный логин другим пользователем заменяет все поля
	next := &storage.AuthData{Username: "delegate", UserID: 9, AccessToken: "token-9"}
	require.NoError(t, store.SaveAuth(ctx, next))
	got, err = store.GetAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	require.NoError(t, store.DeleteAuth(ctx))
	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
	assert.ErrorIs(t, store.DeleteAuth(ctx), storage.ErrAuthNotFound)
}

func TestStorage_IsAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		auth *storage.AuthData
		want bool
	}{
		{name: "nothing stored", want: false},
		{name: "valid token", auth: &storage.AuthData{AccessToken: "t", ExpiresAt: time.Now().Add(time.Minute).Unix()}, want: true},
		{name: "no expiry", auth: &storage.AuthData{AccessToken: "t"}, want: true},
		{name: "expired token", auth: &storage.AuthData{AccessToken: "t", ExpiresAt: time.Now().Add(-time.Minute).Unix()}, want: false},
		{name: "empty token", auth: &storage.AuthData{Username: "chair"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := createTestStorage(t)
			if tt.auth != nil {
				require.NoError(t, store.SaveAuth(ctx, tt.auth))
			}

			ok, err := store.IsAuthenticated(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStorage_GetAuth_CorruptedUserID(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	require.NoError(t, store.SaveAuth(ctx, &storage.AuthData{AccessToken: "t", UserID: 3}))

	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuth).Put(authKeyUserID, []byte("three"))
	}))

	_, err := store.GetAuth(ctx)
	assert.ErrorContains(t, err, "corrupted user id")
}

func TestStorage_Auth_BucketMissing(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucketAuth)
	}))

	_, err := store.GetAuth(ctx)
	assert.ErrorContains(t, err, "auth bucket not found")
	assert.ErrorContains(t, store.SaveAuth(ctx, &storage.AuthData{AccessToken: "t"}), "auth bucket not found")
}

func TestStorage_Auth_CanceledContext(t *testing.T) {
	store := createTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.SaveAuth(ctx, &storage.AuthData{AccessToken: "t"}), context.Canceled)
	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
