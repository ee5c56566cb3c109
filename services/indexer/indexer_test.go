package indexer

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"dscengine/core/events"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	weth  = common.HexToAddress("0x1001")
)

type tick struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tick) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestIndexer(t *testing.T, opts ...Option) *Indexer {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	clock := &tick{now: time.Unix(1_700_000_000, 0)}
	idx, err := New(db, append([]Option{withClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return idx
}

func TestStoreAndQuery(t *testing.T) {
	idx := newTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, idx.Store(ctx, events.CollateralDeposited{User: alice, Asset: weth, Amount: big.NewInt(10)}))
	require.NoError(t, idx.Store(ctx, events.DebtMinted{User: bob, Amount: big.NewInt(3)}))
	require.NoError(t, idx.Store(ctx, events.DebtMinted{User: alice, Amount: big.NewInt(5)}))

	recent, err := idx.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, events.TypeDebtMinted, recent[0].Type)
	require.Equal(t, alice.Hex(), recent[0].Account)

	mine, err := idx.ByAccount(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, events.TypeCollateralDeposited, mine[1].Type)

	attrs, err := mine[1].DecodeAttributes()
	require.NoError(t, err)
	require.Equal(t, "10", attrs["amount"])
	require.Len(t, mine[1].Fingerprint, 64)
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	idx := newTestIndexer(t, WithQueueSize(8))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx) }()

	for i := int64(1); i <= 5; i++ {
		idx.Emit(events.DebtMinted{User: alice, Amount: big.NewInt(i)})
	}
	cancel()
	require.NoError(t, <-done)

	records, err := idx.ByAccount(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, records, 5)
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	idx := newTestIndexer(t, WithQueueSize(1))
	idx.Emit(events.DebtMinted{User: alice, Amount: big.NewInt(1)})
	idx.Emit(events.DebtMinted{User: alice, Amount: big.NewInt(2)})
	require.Len(t, idx.queue, 1)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, defaultLimit, clampLimit(0))
	require.Equal(t, maxLimit, clampLimit(10_000))
	require.Equal(t, 7, clampLimit(7))
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
