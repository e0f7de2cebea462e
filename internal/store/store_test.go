package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankledger/internal/logging"
)

// runBackendSuite exercises the Backend contract through a Ledger. Every
// backend implementation runs it.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("CommitAndRead", func(t *testing.T) { testCommitAndRead(t, newBackend(t)) })
	t.Run("FailedInvocationWritesNothing", func(t *testing.T) { testFailedInvocation(t, newBackend(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newBackend(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newBackend(t)) })
	t.Run("PartialCompositeScan", func(t *testing.T) { testPartialCompositeScan(t, newBackend(t)) })
	t.Run("ConflictOnSharedKey", func(t *testing.T) { testConflictOnSharedKey(t, newBackend(t)) })
	t.Run("DisjointKeysBothCommit", func(t *testing.T) { testDisjointKeys(t, newBackend(t)) })
	t.Run("ConflictOnReadOnlyKey", func(t *testing.T) { testConflictOnReadOnlyKey(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
}

func newTestLedger(t *testing.T, b Backend) *Ledger {
	t.Cleanup(func() { b.Close() })
	return NewLedger(b, logging.NewTestLogger(t))
}

func put(t *testing.T, l *Ledger, kvs ...string) {
	t.Helper()
	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		for i := 0; i < len(kvs); i += 2 {
			if err := tx.PutState(kvs[i], []byte(kvs[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func get(t *testing.T, l *Ledger, key string) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		var err error
		out, err = tx.GetState(key)
		return err
	}))
	return out
}

func testCommitAndRead(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	assert.Nil(t, get(t, l, "BANK_BALANCE"))

	put(t, l, "BANK_BALANCE", "100")
	assert.Equal(t, []byte("100"), get(t, l, "BANK_BALANCE"))

	put(t, l, "BANK_BALANCE", "250.5")
	assert.Equal(t, []byte("250.5"), get(t, l, "BANK_BALANCE"))
}

func testFailedInvocation(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	put(t, l, "BANK_BALANCE", "100")

	boom := errors.New("boom")
	err := l.Invoke(context.Background(), func(tx *Txn) error {
		require.NoError(t, tx.PutState("BANK_BALANCE", []byte("0")))
		require.NoError(t, tx.PutState("OTHER", []byte("x")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []byte("100"), get(t, l, "BANK_BALANCE"))
	assert.Nil(t, get(t, l, "OTHER"))
}

func testReadYourWrites(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	put(t, l, "BANK_BALANCE", "100")

	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		require.NoError(t, tx.PutState("BANK_BALANCE", []byte("90")))
		v, err := tx.GetState("BANK_BALANCE")
		require.NoError(t, err)
		assert.Equal(t, []byte("90"), v)
		return tx.PutState("BANK_BALANCE", []byte("100"))
	}))

	assert.Equal(t, []byte("100"), get(t, l, "BANK_BALANCE"))
}

func testHistory(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	key, err := CreateCompositeKey("ACC", []string{"1"})
	require.NoError(t, err)

	var txIDs []string
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
			txIDs = append(txIDs, tx.TxID())
			return tx.PutState(key, []byte(v))
		}))
	}

	var mods []KeyModification
	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		mods, err = tx.GetHistoryForKey(key)
		return err
	}))

	require.Len(t, mods, 3)
	for i, v := range []string{"a", "b", "c"} {
		assert.Equal(t, []byte(v), mods[i].Value)
		assert.Equal(t, txIDs[i], mods[i].TxID)
		assert.False(t, mods[i].IsDelete)
		assert.False(t, mods[i].Timestamp.IsZero())
	}
	assert.False(t, mods[2].Timestamp.Before(mods[0].Timestamp))
}

func testPartialCompositeScan(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	k1, _ := CreateCompositeKey("ACC", []string{"1"})
	k2, _ := CreateCompositeKey("ACC", []string{"2"})
	other, _ := CreateCompositeKey("ACCX", []string{"9"})
	put(t, l, k1, "one", k2, "two", other, "nine", "BANK_BALANCE", "0")

	errDiscard := errors.New("discard")
	err := l.Invoke(context.Background(), func(tx *Txn) error {
		k3, _ := CreateCompositeKey("ACC", []string{"3"})
		require.NoError(t, tx.PutState(k3, []byte("three")))

		kvs, err := tx.GetStateByPartialCompositeKey("ACC", nil)
		require.NoError(t, err)
		require.Len(t, kvs, 3)
		assert.Equal(t, KV{Key: k1, Value: []byte("one")}, kvs[0])
		assert.Equal(t, KV{Key: k2, Value: []byte("two")}, kvs[1])
		assert.Equal(t, KV{Key: k3, Value: []byte("three")}, kvs[2])
		return errDiscard
	})
	require.ErrorIs(t, err, errDiscard)
}

// testConflictOnSharedKey interleaves two invocations that both
// read-modify-write the same key. The one committing second must fail.
func testConflictOnSharedKey(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	put(t, l, "BANK_BALANCE", "100")

	read := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- l.Invoke(context.Background(), func(tx *Txn) error {
			if _, err := tx.GetState("BANK_BALANCE"); err != nil {
				return err
			}
			close(read)
			<-proceed
			return tx.PutState("BANK_BALANCE", []byte("110"))
		})
	}()

	<-read
	put(t, l, "BANK_BALANCE", "120")
	close(proceed)

	err := <-done
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []byte("120"), get(t, l, "BANK_BALANCE"))
}

func testDisjointKeys(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	put(t, l, "A", "1", "B", "1")

	read := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- l.Invoke(context.Background(), func(tx *Txn) error {
			if _, err := tx.GetState("A"); err != nil {
				return err
			}
			close(read)
			<-proceed
			return tx.PutState("A", []byte("2"))
		})
	}()

	<-read
	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		if _, err := tx.GetState("B"); err != nil {
			return err
		}
		return tx.PutState("B", []byte("2"))
	}))
	close(proceed)

	require.NoError(t, <-done)
	assert.Equal(t, []byte("2"), get(t, l, "A"))
	assert.Equal(t, []byte("2"), get(t, l, "B"))
}

func testConflictOnReadOnlyKey(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	put(t, l, "A", "1", "B", "1")

	read := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- l.Invoke(context.Background(), func(tx *Txn) error {
			if _, err := tx.GetState("A"); err != nil {
				return err
			}
			close(read)
			<-proceed
			return tx.PutState("B", []byte("copied"))
		})
	}()

	<-read
	put(t, l, "A", "changed")
	close(proceed)

	require.ErrorIs(t, <-done, ErrConflict)
	assert.Equal(t, []byte("1"), get(t, l, "B"))
}

func testDelete(t *testing.T, b Backend) {
	l := newTestLedger(t, b)
	key, _ := CreateCompositeKey("ACC", []string{"1"})
	put(t, l, key, "one")

	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		return tx.DelState(key)
	}))
	assert.Nil(t, get(t, l, key))

	require.NoError(t, l.Invoke(context.Background(), func(tx *Txn) error {
		kvs, err := tx.GetStateByPartialCompositeKey("ACC", nil)
		require.NoError(t, err)
		assert.Empty(t, kvs)

		mods, err := tx.GetHistoryForKey(key)
		require.NoError(t, err)
		require.Len(t, mods, 2)
		assert.True(t, mods[1].IsDelete)
		return nil
	}))
}

func TestMemoryBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend { return NewMemoryBackend() })
}

func TestBadgerBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		b, err := OpenBadgerBackend(t.TempDir(), logging.NewTestLogger(t))
		require.NoError(t, err)
		return b
	})
}

func TestPutStateRejectsBadKeys(t *testing.T) {
	l := newTestLedger(t, NewMemoryBackend())
	err := l.Invoke(context.Background(), func(tx *Txn) error {
		assert.Error(t, tx.PutState("", []byte("x")))
		assert.Error(t, tx.PutState("\x00broken", []byte("x")))
		assert.Error(t, tx.PutState("K", nil))
		return nil
	})
	require.NoError(t, err)
}

func TestInvokeAbandonedContext(t *testing.T) {
	l := newTestLedger(t, NewMemoryBackend())
	ctx, cancel := context.WithCancel(context.Background())

	err := l.Invoke(ctx, func(tx *Txn) error {
		cancel()
		return tx.PutState("BANK_BALANCE", []byte("1"))
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, get(t, l, "BANK_BALANCE"))
}
