package history

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func Test_SetClientFileIdent_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	e := New(db, nil)

	ident := protocol.SaltedFileIdent{Ident: 7, Salt: 13}
	require.NoError(t, e.SetClientFileIdent(ident, true))
	require.NoError(t, e.SetClientFileIdent(ident, true))

	got, ok, err := e.FileIdent()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ident, got)
}

func Test_IntegrateServerChangesets_Empty(t *testing.T) {
	db := openTestDB(t)
	e := New(db, nil)

	info, integrationErr := e.IntegrateServerChangesets(protocol.SyncProgress{}, 0, nil)
	require.Nil(t, integrationErr)
	require.Equal(t, uint64(0), info.LatestIntegratedRemoteVersion)
}

func Test_IntegrateServerChangesets_TracksMaxServerVersion(t *testing.T) {
	db := openTestDB(t)
	e := New(db, nil)

	_, integrationErr := e.IntegrateServerChangesets(protocol.SyncProgress{}, 0, []protocol.RemoteChangeset{
		{RemoteVersion: 1},
		{RemoteVersion: 2},
		{RemoteVersion: 3},
	})
	require.Nil(t, integrationErr)

	progress, err := e.Progress()
	require.NoError(t, err)
	require.Equal(t, uint64(3), progress.Download.ServerVersion)
}

func Test_IntegrateServerChangesets_RejectsNonContiguous(t *testing.T) {
	db := openTestDB(t)
	e := New(db, nil)

	_, integrationErr := e.IntegrateServerChangesets(protocol.SyncProgress{}, 0, []protocol.RemoteChangeset{
		{RemoteVersion: 1},
	})
	require.Nil(t, integrationErr)

	_, integrationErr = e.IntegrateServerChangesets(protocol.SyncProgress{}, 0, []protocol.RemoteChangeset{
		{RemoteVersion: 3},
	})
	require.NotNil(t, integrationErr)
	require.Equal(t, protocol.ErrKindIntegration, integrationErr.Kind)

	progress, err := e.Progress()
	require.NoError(t, err)
	require.Equal(t, uint64(1), progress.Download.ServerVersion, "a rejected batch must not mutate stored progress")
}
