package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"l2resolver/client"
	"l2resolver/config"
	"l2resolver/events"
	"l2resolver/l2"
)

func newTestDevnet(t *testing.T) (*devnet, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Seeds[0].Contenthash = "0xe3010170"
	n, err := newDevnet(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(n.Close)
	require.NoError(t, n.Seed())
	srv := httptest.NewServer(n.Handler())
	t.Cleanup(srv.Close)
	return n, srv
}

func TestDevnetResolvesSeededRecords(t *testing.T) {
	n, srv := newTestDevnet(t)
	ctx := context.Background()

	res, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	_, ok, err := n.proposer.Tick(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	entry, err := n.Resolver([]string{srv.URL + "/{sender}/{data}.json"})
	require.NoError(t, err)
	c := client.New(entry)

	profile, err := c.Text(ctx, "alice.eth", "network.profile")
	require.NoError(t, err)
	require.Equal(t, `{"displayName":"alice"}`, profile)

	addr, err := c.Addr(ctx, "alice.eth")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000a11ce"), addr)

	hash, err := c.Contenthash(ctx, "alice.eth")
	require.NoError(t, err)
	require.Equal(t, []byte{0xe3, 0x01, 0x01, 0x70}, hash)
}

func TestDevnetSeedsOnlyFreshChains(t *testing.T) {
	n, _ := newTestDevnet(t)
	require.Equal(t, uint64(1), n.chain.Head().Number.Uint64())
	require.NoError(t, n.Seed())
	require.Equal(t, uint64(1), n.chain.Head().Number.Uint64())
}

func TestDevnetHistoryEndpoint(t *testing.T) {
	_, srv := newTestDevnet(t)

	res, err := http.Get(srv.URL + "/devnet/history/Alice.eth")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var entries []historyEntry
	require.NoError(t, json.NewDecoder(res.Body).Decode(&entries))
	types := make(map[string]int)
	for _, entry := range entries {
		require.Equal(t, uint64(1), entry.Block)
		types[entry.Type]++
	}
	require.Equal(t, 2, types[events.TypeTextChanged])
	require.Equal(t, 1, types[events.TypeContenthashChanged])
}

func TestDevnetServesL2RPC(t *testing.T) {
	n, srv := newTestDevnet(t)
	ctx := context.Background()

	reader, err := l2.DialRPC(ctx, srv.URL+"/rpc")
	require.NoError(t, err)
	t.Cleanup(reader.Close)

	head, err := reader.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	header, err := reader.HeaderByNumber(ctx, head)
	require.NoError(t, err)
	require.Equal(t, n.chain.Head().Root, header.Root)
}
