package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bankledger/internal/logging"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	b, err := OpenBackend(ctx, BackendOptions{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)
	require.NoError(t, b.Close())

	dir := filepath.Join(t.TempDir(), "badger")
	b, err = OpenBackend(ctx, BackendOptions{Kind: KindBadger, BadgerDir: dir}, logger)
	require.NoError(t, err)
	require.IsType(t, &BadgerBackend{}, b)
	assert.Equal(t, dir, b.(*BadgerBackend).Path())
	require.NoError(t, b.Close())

	_, err = OpenBackend(ctx, BackendOptions{Kind: "leveldb"}, logger)
	assert.EqualError(t, err, `unknown store backend "leveldb"`)
}
