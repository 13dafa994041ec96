package l2

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"l2resolver/ens"
	"l2resolver/layout"
)

func TestRPCReaderMatchesChain(t *testing.T) {
	chain := newChain(t)
	setText(t, chain, "alice.eth", "network.profile", `{"a":1}`)

	server, err := NewRPCServer(chain)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	client := rpc.DialInProc(server)
	reader := NewRPCReader(client)
	t.Cleanup(reader.Close)

	ctx := context.Background()
	head, err := reader.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	header, err := reader.HeaderByNumber(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, chain.Head().Root, header.Root)

	_, err = reader.HeaderByNumber(ctx, 9)
	require.ErrorIs(t, err, ErrUnknownBlock)

	slot := layout.TextSlot(0, alice, ens.NameHash("alice.eth"), "network.profile")
	word, err := reader.StorageAt(ctx, storeAddr, slot, 1)
	require.NoError(t, err)
	want, err := chain.StorageAt(ctx, storeAddr, slot, 1)
	require.NoError(t, err)
	require.Equal(t, want, word)

	proof, err := reader.GetProof(ctx, storeAddr, []common.Hash{slot}, 1)
	require.NoError(t, err)
	local, err := chain.GetProof(ctx, storeAddr, []common.Hash{slot}, 1)
	require.NoError(t, err)
	require.Equal(t, local.AccountProof, proof.AccountProof)
	require.Equal(t, local.StorageHash, proof.StorageHash)
	require.Equal(t, local.StorageProof, proof.StorageProof)
}

func TestRPCServerOverHTTP(t *testing.T) {
	chain := newChain(t)
	setText(t, chain, "alice.eth", "url", "https://alice.example")
	setText(t, chain, "alice.eth", "url", "https://alice.example/v2")

	server, err := NewRPCServer(chain)
	require.NoError(t, err)
	t.Cleanup(server.Stop)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	reader, err := DialRPC(ctx, srv.URL)
	require.NoError(t, err)
	t.Cleanup(reader.Close)

	slot := layout.TextSlot(0, alice, ens.NameHash("alice.eth"), "url")
	for _, number := range []uint64{0, 1, 2} {
		want, err := chain.StorageAt(ctx, storeAddr, slot, number)
		require.NoError(t, err)
		got, err := reader.StorageAt(ctx, storeAddr, slot, number)
		require.NoError(t, err)
		require.Equal(t, want, got, "block %d", number)

		header, err := reader.HeaderByNumber(ctx, number)
		require.NoError(t, err)
		local, err := chain.HeaderByNumber(ctx, number)
		require.NoError(t, err)
		require.Equal(t, local.Hash(), header.Hash())
	}
}
