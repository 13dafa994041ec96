package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestLedgerLookups(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	_, err := ledger.LatestCheckpoint(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	for _, block := range []uint64{10, 20, 30} {
		_, err := ledger.Append(common.BigToHash(common.Big1), block, block*2)
		require.NoError(t, err)
	}
	_, err = ledger.Append(common.Hash{}, 30, 0)
	require.Error(t, err)
	require.Equal(t, 3, ledger.Len())

	cp, err := ledger.LatestCheckpointAtOrBefore(ctx, 25)
	require.NoError(t, err)
	require.Equal(t, uint64(1), cp.Index)
	require.Equal(t, uint64(20), cp.L2BlockNumber)

	cp, err = ledger.LatestCheckpointAtOrBefore(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, uint64(2), cp.Index)

	_, err = ledger.LatestCheckpointAtOrBefore(ctx, 9)
	require.ErrorIs(t, err, ErrNotFound)

	cp, err = ledger.CheckpointByIndex(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), cp.L2BlockNumber)
	_, err = ledger.CheckpointByIndex(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOutputV0Hash(t *testing.T) {
	proof := OutputRootProof{
		StateRoot:                common.HexToHash("0x01"),
		MessagePasserStorageRoot: common.HexToHash("0x02"),
		LatestBlockhash:          common.HexToHash("0x03"),
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, make([]byte, 32)...)
	buf = append(buf, proof.StateRoot[:]...)
	buf = append(buf, proof.MessagePasserStorageRoot[:]...)
	buf = append(buf, proof.LatestBlockhash[:]...)

	root, err := DefaultFormats.OutputRoot(proof)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(buf), root)

	proof.Version = common.HexToHash("0x01")
	_, err = DefaultFormats.OutputRoot(proof)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

type versionOne struct{}

func (versionOne) Version() common.Hash { return common.HexToHash("0x01") }

func (versionOne) OutputRoot(p OutputRootProof) common.Hash {
	return crypto.Keccak256Hash(p.Version[:], p.StateRoot[:])
}

func TestFormatRegistryIsPluggable(t *testing.T) {
	registry := NewFormatRegistry(OutputV0{}, versionOne{})
	proof := OutputRootProof{Version: common.HexToHash("0x01"), StateRoot: common.HexToHash("0xaa")}

	root, err := registry.OutputRoot(proof)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(proof.Version[:], proof.StateRoot[:]), root)
}

type countingReader struct {
	*Ledger
	latestCalls int
	indexCalls  int
	failWith    error
}

func (c *countingReader) CheckpointByIndex(ctx context.Context, index uint64) (Checkpoint, error) {
	c.indexCalls++
	return c.Ledger.CheckpointByIndex(ctx, index)
}

func (c *countingReader) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	c.latestCalls++
	if c.failWith != nil {
		return Checkpoint{}, c.failWith
	}
	return c.Ledger.LatestCheckpoint(ctx)
}

func TestCachedServesStaleLatest(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()
	_, err := ledger.Append(common.Hash{1}, 5, 0)
	require.NoError(t, err)
	reader := &countingReader{Ledger: ledger}
	cached := NewCached(reader, time.Minute)

	cp, err := cached.LatestCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), cp.L2BlockNumber)

	_, err = ledger.Append(common.Hash{2}, 9, 0)
	require.NoError(t, err)

	cp, err = cached.LatestCheckpointAtOrBefore(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(5), cp.L2BlockNumber, "stale latest is served")
	require.Equal(t, 1, reader.latestCalls)

	cached.Flush()
	cp, err = cached.LatestCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(9), cp.L2BlockNumber)

	cp, err = cached.LatestCheckpointAtOrBefore(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(5), cp.L2BlockNumber)
}

func TestCachedIndexLookupsWaitForFinalization(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	ledger := NewLedger()
	_, err := ledger.Append(common.Hash{1}, 5, uint64(now.Add(-2*time.Hour).Unix()))
	require.NoError(t, err)
	_, err = ledger.Append(common.Hash{2}, 9, uint64(now.Add(-10*time.Minute).Unix()))
	require.NoError(t, err)

	reader := &countingReader{Ledger: ledger}
	cached := NewCached(reader, time.Minute,
		WithFinalizationPeriod(time.Hour),
		WithCacheClock(func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		cp, err := cached.CheckpointByIndex(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, common.Hash{1}, cp.OutputRoot)
	}
	require.Equal(t, 1, reader.indexCalls, "finalized output is cached")

	for i := 0; i < 2; i++ {
		cp, err := cached.CheckpointByIndex(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, common.Hash{2}, cp.OutputRoot)
	}
	require.Equal(t, 3, reader.indexCalls, "unfinalized output is read through")

	_, err = cached.CheckpointByIndex(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCachedPropagatesUpstreamErrors(t *testing.T) {
	boom := errors.New("l1 unavailable")
	cached := NewCached(&countingReader{Ledger: NewLedger(), failWith: boom}, time.Minute)

	_, err := cached.LatestCheckpointAtOrBefore(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}
