// Package apply implements the Transactional Applier: one Badger write
// transaction per local changeset, running its instructions against
// live tables and committing to a new local version number. An
// instruction-level failure aborts the transaction without persisting
// anything from that changeset.
package apply

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

const keyLocalVersion = "apply:local_version"

// Applier runs changesets against one open database. The database
// handle is single-writer: callers must not run two Applier.Apply calls
// concurrently against the same *badger.DB.
type Applier struct {
	db  *badger.DB
	log *logrus.Logger
}

// New wraps db.
func New(db *badger.DB, log *logrus.Logger) *Applier {
	if log == nil {
		log = logrus.New()
	}
	return &Applier{db: db, log: log}
}

// Apply runs cs.Instructions in order inside one write transaction and
// commits to a new local version. On any instruction failure the
// transaction is discarded and no new version is produced.
func (a *Applier) Apply(cs protocol.LocalChangeset) (uint64, error) {
	var newVersion uint64

	err := a.db.Update(func(txn *badger.Txn) error {
		for i, inst := range cs.Instructions {
			if err := applyInstruction(txn, inst); err != nil {
				return fmt.Errorf("apply: changeset version %d instruction %d: %w", cs.Version, i, err)
			}
		}

		next, err := nextLocalVersion(txn)
		if err != nil {
			return fmt.Errorf("apply: allocating local version: %w", err)
		}
		if err := txn.Set([]byte(keyLocalVersion), encodeVersion(next)); err != nil {
			return err
		}
		newVersion = next
		return nil
	})
	if err != nil {
		a.log.WithError(err).WithField("version", cs.Version).Error("error applying changeset")
		return 0, err
	}

	return newVersion, nil
}

func applyInstruction(txn *badger.Txn, inst protocol.Instruction) error {
	switch inst.Op {
	case protocol.OpCreateObject:
		return txn.Set(objectKey(inst.Table, inst.Key), []byte{1})
	case protocol.OpEraseObject:
		return deletePrefix(txn, rowPrefix(inst.Table, inst.Key))
	case protocol.OpSetField:
		return txn.Set(fieldKey(inst.Table, inst.Key, inst.Field), encodeValue(inst))
	case protocol.OpAddInteger:
		return addInteger(txn, inst)
	case protocol.OpClearTable:
		return deletePrefix(txn, tablePrefix(inst.Table))
	default:
		return fmt.Errorf("unknown opcode %d", inst.Op)
	}
}

func addInteger(txn *badger.Txn, inst protocol.Instruction) error {
	key := fieldKey(inst.Table, inst.Key, inst.Field)
	var current int64
	item, err := txn.Get(key)
	switch err {
	case nil:
		if err := item.Value(func(v []byte) error {
			current = decodeInt(v)
			return nil
		}); err != nil {
			return err
		}
	case badger.ErrKeyNotFound:
		current = 0
	default:
		return err
	}
	return txn.Set(key, encodeInt(current+inst.IntValue))
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func nextLocalVersion(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyLocalVersion))
	if err == badger.ErrKeyNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	var current uint64
	if err := item.Value(func(v []byte) error {
		current = decodeVersion(v)
		return nil
	}); err != nil {
		return 0, err
	}
	return current + 1, nil
}

func tablePrefix(table string) []byte {
	return []byte("row:" + table + ":")
}

func rowPrefix(table, key string) []byte {
	return []byte("row:" + table + ":" + key + ":")
}

func objectKey(table, key string) []byte {
	return append(rowPrefix(table, key), '.')
}

func fieldKey(table, key, field string) []byte {
	return append(rowPrefix(table, key), []byte(field)...)
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeVersion(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func encodeInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func encodeValue(inst protocol.Instruction) []byte {
	switch inst.ValueKind {
	case protocol.ValueKindInt:
		return encodeInt(inst.IntValue)
	case protocol.ValueKindString:
		return []byte(inst.StrValue)
	case protocol.ValueKindBytes:
		return inst.BinValue
	case protocol.ValueKindBool:
		if inst.BoolValue {
			return []byte{1}
		}
		return []byte{0}
	default:
		return nil
	}
}
