package platform

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presence/internal/config"
	"presence/internal/queue"
	"presence/internal/store"
)

func TestNeedsFirebase(t *testing.T) {
	assert.False(t, NeedsFirebase(config.App{StoreBackend: config.StoreMemory}))
	assert.True(t, NeedsFirebase(config.App{StoreBackend: config.StoreFirestore}))
	assert.True(t, NeedsFirebase(config.App{StoreBackend: config.StorePostgres, FirebaseAuth: true}))
}

func TestOpenStoreMemory(t *testing.T) {
	b, check, err := OpenStore(context.Background(), config.App{StoreBackend: config.StoreMemory}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, b)
	assert.True(t, check(context.Background()))
}

func TestOpenStoreFirestoreNeedsApp(t *testing.T) {
	_, _, err := OpenStore(context.Background(), config.App{StoreBackend: config.StoreFirestore}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := store.NewRedis(mr.Addr(), "", 0)
	defer rdb.Close()

	assert.IsType(t, &queue.InMemory{}, OpenQueue(config.App{QueueBackend: "memory"}, rdb, zap.NewNop()))
	assert.IsType(t, &queue.RedisQueue{}, OpenQueue(config.App{QueueBackend: "redis"}, rdb, zap.NewNop()))
}

func TestOpenLedger(t *testing.T) {
	client, err := OpenLedger(config.App{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = OpenLedger(config.App{LedgerRPCURL: "http://bridge.local", LedgerContract: "0xC0FFEE", LedgerWallet: "0xabc"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "0xC0FFEE", client.Contract())
	assert.True(t, client.Authorized("0xABC"))
}
