package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"l2resolver/ens"
	"l2resolver/l2"
	"l2resolver/recordstore"
	"l2resolver/storage"
)

func TestProposerCommitsHeadMinusLag(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	chain, err := l2.NewChain(db, common.HexToAddress("0x1234"))
	require.NoError(t, err)

	ledger := NewLedger()
	proposer, err := NewProposer(chain, ledger, time.Second, WithLag(1))
	require.NoError(t, err)

	_, ok, err := proposer.Tick(ctx)
	require.NoError(t, err)
	require.False(t, ok, "head 0 with lag 1 has nothing to commit")

	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := chain.Transact(func(s *recordstore.Store) error {
			return s.SetText(common.HexToAddress("0xa11ce"), wire, "k", "v")
		})
		require.NoError(t, err)
	}

	cp, ok, err := proposer.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), cp.L2BlockNumber)

	proof, err := BuildOutputRootProof(ctx, chain, OutputV0{}, 2)
	require.NoError(t, err)
	require.Equal(t, OutputV0{}.OutputRoot(proof), cp.OutputRoot)

	_, ok, err = proposer.Tick(ctx)
	require.NoError(t, err)
	require.False(t, ok, "no new block")
}

func TestNewProposerValidates(t *testing.T) {
	_, err := NewProposer(nil, NewLedger(), time.Second)
	require.Error(t, err)
}
