// Package sessiontest provides a conformance suite for session.RecordStore
// implementations.
package sessiontest

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/procuregov/authcore/session"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreSuite exercises the RecordStore contract against stores
// produced by newStore. Each subtest gets a fresh store.
func RunRecordStoreSuite(t *testing.T, newStore func(t *testing.T) session.RecordStore) {
	t.Helper()

	t.Run("persist then find", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec := sampleRecord("2f1c3b7e-8a55-4d3e-9a43-6c1f0b1d2e3f")

		require.NoError(t, store.PersistSessionRecord(ctx, rec))

		got, err := store.FindSessionRecord(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Equal(t, rec.SessionID, got.SessionID)
		require.Equal(t, rec.PrincipalID, got.PrincipalID)
		require.Equal(t, rec.RefreshHash, got.RefreshHash)
		require.Equal(t, rec.SourceIP, got.SourceIP)
		require.Equal(t, rec.UserAgent, got.UserAgent)
		require.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created %v != %v", rec.CreatedAt, got.CreatedAt)
		require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires %v != %v", rec.ExpiresAt, got.ExpiresAt)
	})

	t.Run("find missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindSessionRecord(context.Background(), "00000000-0000-4000-8000-000000000000")
		require.ErrorIs(t, err, session.ErrRecordNotFound)
	})

	t.Run("persist overwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec := sampleRecord("5d2b1f7a-1c9e-4b8a-8e21-0f3c7d9a6b54")
		require.NoError(t, store.PersistSessionRecord(ctx, rec))

		rec.RefreshHash = sha256.Sum256([]byte("second"))
		require.NoError(t, store.PersistSessionRecord(ctx, rec))

		got, err := store.FindSessionRecord(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Equal(t, rec.RefreshHash, got.RefreshHash)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec := sampleRecord("9b7e4c2a-3f1d-4e6b-a8c5-7d2e1f0a9b3c")
		require.NoError(t, store.PersistSessionRecord(ctx, rec))

		require.NoError(t, store.DeleteSessionRecord(ctx, rec.SessionID))
		require.NoError(t, store.DeleteSessionRecord(ctx, rec.SessionID))

		_, err := store.FindSessionRecord(ctx, rec.SessionID)
		require.ErrorIs(t, err, session.ErrRecordNotFound)
	})

	t.Run("swap refresh hash", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec := sampleRecord("c4a1e7b3-6d2f-4a9c-b5e8-1f3d7a2c9e60")
		require.NoError(t, store.PersistSessionRecord(ctx, rec))

		next := sha256.Sum256([]byte("rotated"))
		require.NoError(t, store.SwapRefreshHash(ctx, rec.SessionID, rec.RefreshHash, next))

		got, err := store.FindSessionRecord(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Equal(t, next, got.RefreshHash)

		err = store.SwapRefreshHash(ctx, rec.SessionID, rec.RefreshHash, sha256.Sum256([]byte("again")))
		require.ErrorIs(t, err, session.ErrRefreshHashMismatch)

		err = store.SwapRefreshHash(ctx, "0d9e8f7a-6b5c-4d3e-8f1a-2b3c4d5e6f70", next, next)
		require.ErrorIs(t, err, session.ErrRecordNotFound)
	})
}

func sampleRecord(id string) session.Record {
	created := time.Unix(1_760_000_000, 0).UTC()
	return session.Record{
		SessionID:   id,
		PrincipalID: "principal-" + id[:8],
		RefreshHash: sha256.Sum256([]byte("refresh-" + id)),
		SourceIP:    "198.51.100.7",
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		CreatedAt:   created,
		ExpiresAt:   created.Add(7 * 24 * time.Hour),
	}
}
