// Package history implements the History / Integration Engine: an
// append-only record of integrated remote changesets, the per-session
// SyncProgress cursors, and the server-assigned file identity, all
// persisted in the state database.
package history

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

const (
	keyProgress  = "history:progress"
	keyFileIdent = "history:file_ident"
	prefixRemote = "history:remote:"
)

// Engine owns the history log for one session against one open database.
type Engine struct {
	db  *badger.DB
	log *logrus.Logger
}

// New wraps db. log may be nil, in which case a default logrus.Logger is
// used.
func New(db *badger.DB, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{db: db, log: log}
}

// VersionInfo is returned by IntegrateServerChangesets on success.
type VersionInfo struct {
	// LatestIntegratedRemoteVersion is the remote_version of the last
	// changeset absorbed by this call.
	LatestIntegratedRemoteVersion uint64
}

// IntegrateServerChangesets atomically advances progress to absorb a
// contiguous run of remote changesets. remote_version within changesets
// must be strictly increasing and contiguous with the previously
// integrated remote version (if any). A violation yields an
// IntegrationError of kind ErrKindIntegration rather than a Go error, as
// an out-parameter of integration instead of a propagated error value.
func (e *Engine) IntegrateServerChangesets(
	progress protocol.SyncProgress,
	downloadableBytesHint uint64,
	changesets []protocol.RemoteChangeset,
) (VersionInfo, *protocol.IntegrationError) {
	var info VersionInfo

	err := e.db.Update(func(txn *badger.Txn) error {
		last, haveLast, err := readLastRemoteVersion(txn)
		if err != nil {
			return err
		}

		for _, cs := range changesets {
			if haveLast && cs.RemoteVersion != last+1 {
				return &integrationOrderError{got: cs.RemoteVersion, want: last + 1}
			}
			if !haveLast && cs.RemoteVersion == 0 {
				return &integrationOrderError{got: cs.RemoteVersion, want: 1}
			}

			data, err := encodeGob(cs)
			if err != nil {
				return fmt.Errorf("encoding remote changeset: %w", err)
			}
			key := remoteChangesetKey(cs.RemoteVersion)
			if err := txn.Set(key, data); err != nil {
				return err
			}

			last = cs.RemoteVersion
			haveLast = true
			info.LatestIntegratedRemoteVersion = cs.RemoteVersion
		}

		if len(changesets) > 0 {
			progress.Download.ServerVersion = info.LatestIntegratedRemoteVersion
		}

		data, err := encodeGob(progress)
		if err != nil {
			return fmt.Errorf("encoding sync progress: %w", err)
		}
		return txn.Set([]byte(keyProgress), data)
	})

	if err == nil {
		return info, nil
	}

	if orderErr, ok := err.(*integrationOrderError); ok {
		e.log.WithFields(logrus.Fields{
			"got": orderErr.got, "want": orderErr.want,
		}).Error("remote changeset is not contiguous with integrated history")
		return VersionInfo{}, &protocol.IntegrationError{
			Kind:    protocol.ErrKindIntegration,
			Message: orderErr.Error(),
		}
	}

	e.log.WithError(err).Error("error integrating server changesets")
	return VersionInfo{}, &protocol.IntegrationError{
		Kind:    protocol.ErrKindTransaction,
		Message: err.Error(),
	}
}

// SetClientFileIdent records the server-assigned file identity. It is
// idempotent: calling it again with the same identity is a no-op write
// of the same value, never an error.
func (e *Engine) SetClientFileIdent(fileIdent protocol.SaltedFileIdent, fixUpObjectIds bool) error {
	return e.db.Update(func(txn *badger.Txn) error {
		data, err := encodeGob(fileIdent)
		if err != nil {
			return fmt.Errorf("encoding file ident: %w", err)
		}
		return txn.Set([]byte(keyFileIdent), data)
	})
}

// FileIdent returns the previously stored file identity, if any.
func (e *Engine) FileIdent() (protocol.SaltedFileIdent, bool, error) {
	var ident protocol.SaltedFileIdent
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyFileIdent))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return decodeGob(v, &ident)
		})
	})
	if err != nil {
		return protocol.SaltedFileIdent{}, false, err
	}
	return ident, ident != (protocol.SaltedFileIdent{}), nil
}

// Progress returns the previously stored SyncProgress, or the zero value
// if none has been recorded yet.
func (e *Engine) Progress() (protocol.SyncProgress, error) {
	var progress protocol.SyncProgress
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyProgress))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return decodeGob(v, &progress)
		})
	})
	return progress, err
}

func readLastRemoteVersion(txn *badger.Txn) (uint64, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	seekFrom := append([]byte(prefixRemote), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	it.Seek(seekFrom)
	if !it.ValidForPrefix([]byte(prefixRemote)) {
		return 0, false, nil
	}
	key := it.Item().Key()
	version := decodeRemoteVersionKey(key)
	return version, true, nil
}

func remoteChangesetKey(version uint64) []byte {
	key := make([]byte, 0, len(prefixRemote)+8)
	key = append(key, prefixRemote...)
	for i := 7; i >= 0; i-- {
		key = append(key, byte(version>>(8*i)))
	}
	return key
}

func decodeRemoteVersionKey(key []byte) uint64 {
	suffix := key[len(prefixRemote):]
	var v uint64
	for _, b := range suffix {
		v = v<<8 | uint64(b)
	}
	return v
}

type integrationOrderError struct {
	got, want uint64
}

func (e *integrationOrderError) Error() string {
	return fmt.Sprintf("remote_version %d is not contiguous with expected %d", e.got, e.want)
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
