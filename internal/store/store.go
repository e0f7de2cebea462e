package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConflict means a key in the invocation's read set was committed by
	// someone else first. Nothing from the losing invocation was written.
	ErrConflict = errors.New("optimistic version conflict")
	ErrClosed   = errors.New("store closed")
)

// Version is one committed value of a key. Seq starts at 1 and increases by
// one with every commit touching the key.
type Version struct {
	Seq       uint64
	Value     []byte
	TxID      string
	Timestamp time.Time
	IsDelete  bool
}

// Entry is a live key with its latest version.
type Entry struct {
	Key     string
	Version Version
}

// Write is one buffered mutation.
type Write struct {
	Key      string
	Value    []byte
	IsDelete bool
}

// Changeset is what an invocation hands to a backend at commit time. Reads
// maps every key read to the Seq observed (0 when the key was absent).
type Changeset struct {
	TxID      string
	Timestamp time.Time
	Reads     map[string]uint64
	Writes    []Write
}

// Backend is a versioned key/value store. Commit must be all-or-nothing and
// return ErrConflict when any Reads entry no longer matches the key's
// latest Seq.
type Backend interface {
	// Get returns the latest version of key, or nil when the key was never
	// written.
	Get(ctx context.Context, key string) (*Version, error)
	// Scan returns live keys in [start, end) in key order. An empty end
	// means no upper bound.
	Scan(ctx context.Context, start, end string) ([]Entry, error)
	// History returns every version of key, oldest first.
	History(ctx context.Context, key string) ([]Version, error)
	Commit(ctx context.Context, cs *Changeset) error
	Close() error
}

// KV is a key and its value as returned from a range scan.
type KV struct {
	Key   string
	Value []byte
}

// KeyModification is one entry of a key's history.
type KeyModification struct {
	TxID      string
	Value     []byte
	Timestamp time.Time
	IsDelete  bool
}

func latestSeq(v *Version) uint64 {
	if v == nil {
		return 0
	}
	return v.Seq
}
