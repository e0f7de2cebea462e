package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Ledger runs invocations against a Backend. Each invocation is one unit of
// work: its writes are committed together or not at all.
type Ledger struct {
	backend Backend
	logger  *logrus.Entry
	now     func() time.Time
}

func NewLedger(backend Backend, logger *logrus.Entry) *Ledger {
	return &Ledger{
		backend: backend,
		logger:  logger.WithField("component", "ledger"),
		now:     time.Now,
	}
}

// Invoke calls fn with a fresh Txn and commits its writes when fn returns
// nil. A failing fn discards everything it wrote. Commit returns
// ErrConflict (wrapped) when another invocation won the race; the caller
// may simply call Invoke again.
func (l *Ledger) Invoke(ctx context.Context, fn func(tx *Txn) error) error {
	// postgres keeps microseconds, so every backend does
	ts := l.now().UTC().Truncate(time.Microsecond)
	tx := newTxn(ctx, l.backend, uuid.NewString(), ts)

	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("invocation %s abandoned before commit: %w", tx.txID, err)
	}

	cs := tx.changeset()
	if err := l.backend.Commit(ctx, cs); err != nil {
		l.logger.WithFields(logrus.Fields{
			"tx_id":  cs.TxID,
			"reads":  len(cs.Reads),
			"writes": len(cs.Writes),
		}).WithError(err).Debug("commit rejected")
		return fmt.Errorf("commit %s: %w", cs.TxID, err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.backend.Close()
}
