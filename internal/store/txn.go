package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Txn is the view of the ledger handed to a single invocation. Reads go to
// the backend and are recorded with the Seq observed; writes are buffered
// and visible to later reads of the same Txn. Nothing reaches the backend
// until Ledger.Invoke commits the Txn.
type Txn struct {
	ctx       context.Context
	backend   Backend
	txID      string
	timestamp time.Time

	reads  map[string]uint64
	writes map[string]*Write
	order  []string
}

func newTxn(ctx context.Context, backend Backend, txID string, ts time.Time) *Txn {
	return &Txn{
		ctx:       ctx,
		backend:   backend,
		txID:      txID,
		timestamp: ts,
		reads:     make(map[string]uint64),
		writes:    make(map[string]*Write),
	}
}

func (t *Txn) TxID() string { return t.txID }

func (t *Txn) TxTimestamp() time.Time { return t.timestamp }

// GetState returns the value of key, or nil when the key does not exist.
func (t *Txn) GetState(key string) ([]byte, error) {
	if w, ok := t.writes[key]; ok {
		if w.IsDelete {
			return nil, nil
		}
		return w.Value, nil
	}
	v, err := t.backend.Get(t.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	if err := t.observe(key, latestSeq(v)); err != nil {
		return nil, err
	}
	if v == nil || v.IsDelete {
		return nil, nil
	}
	return v.Value, nil
}

func (t *Txn) PutState(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("put state %q: nil value, use DelState", key)
	}
	t.buffer(Write{Key: key, Value: value})
	return nil
}

func (t *Txn) DelState(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	t.buffer(Write{Key: key, IsDelete: true})
	return nil
}

// GetStateByPartialCompositeKey returns every live key under the composite
// prefix built from objectType and attributes, in key order.
func (t *Txn) GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error) {
	prefix, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}
	entries, err := t.backend.Scan(t.ctx, prefix, prefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", objectType, err)
	}

	merged := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if err := t.observe(e.Key, e.Version.Seq); err != nil {
			return nil, err
		}
		merged[e.Key] = e.Version.Value
	}
	for _, key := range t.order {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		w := t.writes[key]
		if w.IsDelete {
			delete(merged, key)
			continue
		}
		merged[key] = w.Value
	}

	out := make([]KV, 0, len(merged))
	for k, v := range merged {
		out = append(out, KV{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// GetHistoryForKey returns the committed history of key, oldest first.
// Buffered writes of this Txn are not part of it.
func (t *Txn) GetHistoryForKey(key string) ([]KeyModification, error) {
	versions, err := t.backend.History(t.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	mods := make([]KeyModification, 0, len(versions))
	for _, v := range versions {
		mods = append(mods, KeyModification{
			TxID:      v.TxID,
			Value:     v.Value,
			Timestamp: v.Timestamp,
			IsDelete:  v.IsDelete,
		})
	}
	return mods, nil
}

// observe records the first Seq seen for key. A later read that sees a
// different Seq means another invocation committed in between.
func (t *Txn) observe(key string, seq uint64) error {
	if prev, ok := t.reads[key]; ok {
		if prev != seq {
			return fmt.Errorf("key %q changed during invocation: %w", key, ErrConflict)
		}
		return nil
	}
	t.reads[key] = seq
	return nil
}

func (t *Txn) buffer(w Write) {
	if _, ok := t.writes[w.Key]; !ok {
		t.order = append(t.order, w.Key)
	}
	t.writes[w.Key] = &w
}

func (t *Txn) changeset() *Changeset {
	cs := &Changeset{
		TxID:      t.txID,
		Timestamp: t.timestamp,
		Reads:     t.reads,
		Writes:    make([]Write, 0, len(t.order)),
	}
	for _, key := range t.order {
		cs.Writes = append(cs.Writes, *t.writes[key])
	}
	return cs
}

func validateKey(key string) error {
	if strings.HasPrefix(key, compositeKeyNamespace) {
		if _, _, err := SplitCompositeKey(key); err != nil {
			return err
		}
		return nil
	}
	return validateSimpleKey(key)
}
