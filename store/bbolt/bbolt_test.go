package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/procuregov/authcore/session"
	"github.com/procuregov/authcore/session/sessiontest"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordStore(t *testing.T) {
	sessiontest.RunRecordStoreSuite(t, func(t *testing.T) session.RecordStore {
		return newTestStore(t)
	})
}

func TestCorruptRecordIsNotNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte("broken"), []byte("{"))
	}))

	_, err := s.FindSessionRecord(context.Background(), "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, session.ErrRecordNotFound)
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := Open(path)
	require.NoError(t, err)

	rec := session.Record{SessionID: "a5f0c1d2-0000-4000-8000-000000000001", PrincipalID: "agency-1"}
	rec.RefreshHash[0] = 7
	require.NoError(t, s.PersistSessionRecord(context.Background(), rec))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindSessionRecord(context.Background(), rec.SessionID)
	require.NoError(t, err)
	require.Equal(t, rec.RefreshHash, got.RefreshHash)
	require.Equal(t, "agency-1", got.PrincipalID)
}
