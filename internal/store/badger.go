package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	latestPrefix  = "s"
	historyPrefix = "h"
)

// BadgerBackend stores the ledger in an embedded badger database. The latest
// version of every key lives under latestPrefix; every version, including
// the latest, is kept under historyPrefix ordered by Seq. Commits run in a
// badger read-write transaction, so two commits racing on a key are
// rejected by badger itself as well as by the Seq check.
type BadgerBackend struct {
	db   *badger.DB
	path string
}

type badgerRecord struct {
	Seq       uint64    `codec:"seq"`
	Value     []byte    `codec:"value,omitempty"`
	TxID      string    `codec:"txId"`
	Timestamp time.Time `codec:"ts"`
	IsDelete  bool      `codec:"del,omitempty"`
}

func (r *badgerRecord) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (r *badgerRecord) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

func OpenBadgerBackend(path string, logger *logrus.Entry) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = logger.WithField("component", "badger")
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerBackend{db: handle, path: path}, nil
}

//==============================================================================
//Keys

func latestKey(key string) []byte {
	return []byte(latestPrefix + key)
}

// historyKey length-prefixes key so no key's history range can contain
// another key's entries.
func historyKey(key string, seq uint64) []byte {
	buf := make([]byte, 0, len(historyPrefix)+4+len(key)+8)
	buf = append(buf, historyPrefix...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	return binary.BigEndian.AppendUint64(buf, seq)
}

func historyKeyPrefix(key string) []byte {
	k := historyKey(key, 0)
	return k[:len(k)-8]
}

//==============================================================================
//Backend

func (s *BadgerBackend) Get(_ context.Context, key string) (*Version, error) {
	var v *Version
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = s.dbGetLatest(txn, key)
		return err
	})
	return v, err
}

func (s *BadgerBackend) Scan(_ context.Context, start, end string) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		upper := ""
		if end != "" {
			upper = latestPrefix + end
		}
		for it.Seek(latestKey(start)); it.ValidForPrefix([]byte(latestPrefix)); it.Next() {
			item := it.Item()
			k := string(item.KeyCopy(nil))
			if upper != "" && k >= upper {
				break
			}
			rec, err := decodeBadgerItem(item)
			if err != nil {
				return err
			}
			if rec.IsDelete {
				continue
			}
			out = append(out, Entry{Key: k[len(latestPrefix):], Version: rec.version()})
		}
		return nil
	})
	return out, err
}

func (s *BadgerBackend) History(_ context.Context, key string) ([]Version, error) {
	var out []Version
	prefix := historyKeyPrefix(key)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec, err := decodeBadgerItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, rec.version())
		}
		return nil
	})
	return out, err
}

func (s *BadgerBackend) Commit(_ context.Context, cs *Changeset) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for key, seq := range cs.Reads {
			cur, err := s.dbGetLatest(txn, key)
			if err != nil {
				return err
			}
			if latestSeq(cur) != seq {
				return ErrConflict
			}
		}
		for _, w := range cs.Writes {
			cur, err := s.dbGetLatest(txn, w.Key)
			if err != nil {
				return err
			}
			rec := badgerRecord{
				Seq:       latestSeq(cur) + 1,
				Value:     w.Value,
				TxID:      cs.TxID,
				Timestamp: cs.Timestamp,
				IsDelete:  w.IsDelete,
			}
			val, err := rec.Marshal()
			if err != nil {
				return err
			}
			if err := txn.Set(latestKey(w.Key), val); err != nil {
				return err
			}
			if err := txn.Set(historyKey(w.Key, rec.Seq), val); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

func (s *BadgerBackend) Close() error {
	return s.db.Close()
}

func (s *BadgerBackend) Path() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerBackend) dbGetLatest(txn *badger.Txn, key string) (*Version, error) {
	item, err := txn.Get(latestKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeBadgerItem(item)
	if err != nil {
		return nil, err
	}
	v := rec.version()
	return &v, nil
}

func decodeBadgerItem(item *badger.Item) (*badgerRecord, error) {
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	rec := new(badgerRecord)
	if err := rec.Unmarshal(raw); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *badgerRecord) version() Version {
	return Version{
		Seq:       r.Seq,
		Value:     r.Value,
		TxID:      r.TxID,
		Timestamp: r.Timestamp,
		IsDelete:  r.IsDelete,
	}
}
