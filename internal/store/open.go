package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	KindMemory   = "memory"
	KindBadger   = "badger"
	KindPostgres = "postgres"
)

type BackendOptions struct {
	Kind      string
	DBSource  string
	BadgerDir string
}

// OpenBackend opens the backend named by opts.Kind. The postgres table is
// created if it does not exist yet.
func OpenBackend(ctx context.Context, opts BackendOptions, logger *logrus.Entry) (Backend, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryBackend(), nil
	case KindBadger:
		b, err := OpenBadgerBackend(opts.BadgerDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger at %s: %w", opts.BadgerDir, err)
		}
		return b, nil
	case KindPostgres:
		pg, err := NewPostgresBackend(ctx, opts.DBSource)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}
