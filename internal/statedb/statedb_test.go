package statedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func Test_Open_Unencrypted(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer db.Close()

	err = db.Badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)
}

func Test_Open_RejectsWrongSizedKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("too-short"), 0o600))

	_, err := Open(Config{Path: filepath.Join(dir, "db"), EncryptionKeyPath: keyPath})
	require.ErrorIs(t, err, ErrKeyFileSize)
}

func Test_Open_AcceptsExactSizedKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, make([]byte, KeyFileSize), 0o600))

	db, err := Open(Config{Path: filepath.Join(dir, "db"), EncryptionKeyPath: keyPath})
	require.NoError(t, err)
	defer db.Close()
}
