package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/session"
	"github.com/procuregov/authcore/session/sessiontest"
	"github.com/procuregov/authcore/store/sqlite"
	"github.com/procuregov/authcore/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlite.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordStore(t *testing.T) {
	sessiontest.RunRecordStoreSuite(t, func(t *testing.T) session.RecordStore {
		return openMemory(t)
	})
}

func TestRecordStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.db")
	sessiontest.RunRecordStoreSuite(t, func(t *testing.T) session.RecordStore {
		s, err := sqlite.Open(t.Context(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPrincipals(t *testing.T) {
	s := openMemory(t)
	ctx := t.Context()

	p := authcore.Principal{
		ID:           "supplier-42",
		Email:        "tenders@acme.example",
		Role:         authcore.RoleSupplier,
		Status:       authcore.StatusActive,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
	}
	require.NoError(t, s.PutPrincipal(ctx, p))

	got, err := s.FindPrincipalByEmail(ctx, "tenders@acme.example")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p.Status = authcore.StatusSuspended
	require.NoError(t, s.PutPrincipal(ctx, p))
	got, err = s.FindPrincipalByID(ctx, "supplier-42")
	require.NoError(t, err)
	assert.Equal(t, authcore.StatusSuspended, got.Status)

	_, err = s.FindPrincipalByID(ctx, "nobody")
	assert.ErrorIs(t, err, authcore.ErrPrincipalNotFound)
	_, err = s.FindPrincipalByEmail(ctx, "nobody@acme.example")
	assert.ErrorIs(t, err, authcore.ErrPrincipalNotFound)
}

func TestClosedDatabaseErrorsAreWrapped(t *testing.T) {
	s, err := sqlite.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.FindSessionRecord(t.Context(), "2f1c3b7e-8a55-4d3e-9a43-6c1f0b1d2e3f")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrRecordNotFound)
	assert.Contains(t, err.Error(), "sqlite: failed to load session record")
}
