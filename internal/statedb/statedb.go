// Package statedb owns the lifecycle of the database file the driver
// applies changesets against: opening or creating the Badger-backed
// store, validating the encryption key file, and checking free disk
// space before committing to a run.
package statedb

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// KeyFileSize is the exact size, in bytes, an encryption key file must
// have. Badger itself only accepts 16/24/32-byte AES keys, so a valid
// key file is reduced to a 32-byte key via SHA-256 before being handed
// to Badger.
const KeyFileSize = 64

// ErrKeyFileSize is returned when the encryption key file is not
// exactly KeyFileSize bytes.
var ErrKeyFileSize = fmt.Errorf("statedb: encryption key file must be exactly %d bytes", KeyFileSize)

// ErrInsufficientSpace is returned when the target path's filesystem
// has less free space than Config.MinimumFreeGB.
var ErrInsufficientSpace = errors.New("statedb: not enough free space on disk")

// Config configures Open.
type Config struct {
	// Path is the directory the Badger store lives in.
	Path string
	// EncryptionKeyPath is an optional path to a KeyFileSize-byte key
	// file. Empty means the store is unencrypted.
	EncryptionKeyPath string
	// MinimumFreeGB rejects Open if the filesystem has fewer free
	// gigabytes than this. Zero disables the check.
	MinimumFreeGB int
	Logger        *logrus.Logger
}

// DB wraps the open Badger handle the history and apply packages share.
type DB struct {
	Badger *badger.DB
	log    *logrus.Logger
}

// Open validates cfg and opens the Badger store at cfg.Path, creating it
// if absent.
func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	if err := checkFreeSpace(cfg.Path, cfg.MinimumFreeGB); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100

	if cfg.EncryptionKeyPath != "" {
		key, err := loadEncryptionKey(cfg.EncryptionKeyPath)
		if err != nil {
			return nil, err
		}
		opts = opts.WithEncryptionKey(key)
	}

	db, err := badger.Open(opts)
	if err != nil {
		cfg.Logger.WithError(err).Error("error opening state database")
		return nil, fmt.Errorf("statedb: opening badger store: %w", err)
	}

	return &DB{Badger: db, log: cfg.Logger}, nil
}

// Close flushes and closes the underlying store.
func (d *DB) Close() error {
	if err := d.Badger.Sync(); err != nil {
		d.log.WithError(err).Warn("error syncing state database before close")
	}
	return d.Badger.Close()
}

// loadEncryptionKey reads the key file at path, rejects any size other
// than KeyFileSize, and derives a 32-byte AES-256 key from its content.
func loadEncryptionKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("statedb: reading encryption key file: %w", err)
	}
	if len(raw) != KeyFileSize {
		return nil, ErrKeyFileSize
	}
	derived := sha256.Sum256(raw)
	return derived[:], nil
}

// checkFreeSpace stats the target path's filesystem directly with
// syscall.Statfs rather than through a filesystem-abstraction library.
func checkFreeSpace(path string, minimumFreeGB int) error {
	if minimumFreeGB <= 0 {
		return nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("statedb: creating state directory: %w", err)
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return fmt.Errorf("statedb: statting state directory: %w", err)
	}

	availableGB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024 * 1024)
	if int(availableGB) < minimumFreeGB {
		return ErrInsufficientSpace
	}
	return nil
}
