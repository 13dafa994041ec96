package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"l2resolver/ens"
	"l2resolver/events"
	"l2resolver/l2"
	"l2resolver/recordstore"
	"l2resolver/storage"
)

var (
	storeAddr = common.HexToAddress("0x39Dc8A3A607970FA9F417D284E958D4cA69296C8")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func openIndex(t *testing.T, path string) *Indexer {
	t.Helper()
	idx, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexerRecordsChainEvents(t *testing.T) {
	idx := openIndex(t, "")
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	chain, err := l2.NewChain(db, storeAddr, l2.WithEmitter(idx))
	require.NoError(t, err)

	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	_, err = chain.Transact(func(s *recordstore.Store) error {
		if err := s.SetText(alice, wire, "network.profile", `{"a":1}`); err != nil {
			return err
		}
		return s.SetAddr(alice, wire, common.HexToAddress("0xf00d"))
	})
	require.NoError(t, err)
	_, err = chain.Transact(func(s *recordstore.Store) error {
		if err := s.SetText(bob, wire, "avatar", "bob"); err != nil {
			return err
		}
		return s.ClearRecords(alice, wire)
	})
	require.NoError(t, err)

	node := ens.NameHash("alice.eth")
	history, err := idx.History(context.Background(), alice, node)
	require.NoError(t, err)
	require.Len(t, history, 4)

	types := make([]string, len(history))
	for i, c := range history {
		types[i] = c.Type
		require.Equal(t, "alice.eth", c.Domain)
		require.Equal(t, node.Hex(), c.Node)
	}
	require.Equal(t, []string{
		events.TypeTextChanged,
		events.TypeAddressChanged,
		events.TypeAddrChanged,
		events.TypeVersionChanged,
	}, types)
	require.Equal(t, uint64(1), history[0].Block)
	require.Equal(t, uint64(2), history[3].Block)
	require.Equal(t, uint64(1), history[3].Version)

	attrs, err := history[0].Attrs()
	require.NoError(t, err)
	require.Equal(t, "network.profile", attrs["key"])
	require.Equal(t, `{"a":1}`, attrs["value"])

	bobs, err := idx.History(context.Background(), bob, node)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
}

func TestIndexerSincePages(t *testing.T) {
	idx := openIndex(t, "")
	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	subject := events.Subject{Context: alice, Name: wire, Node: ens.NameHash("alice.eth")}
	for i := 0; i < 5; i++ {
		idx.Emit(events.Stamped{Block: uint64(i + 1), Event: events.VersionChanged{Subject: subject}})
	}
	idx.Emit(untyped{})

	first, err := idx.Since(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	rest, err := idx.Since(context.Background(), first[2].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, uint64(5), rest[1].Block)
}

type untyped struct{}

func (untyped) EventType() string { return "untyped" }

func TestIndexerPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path, nil)
	require.NoError(t, err)
	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	node := ens.NameHash("alice.eth")
	idx.Emit(events.TextChanged{Subject: events.Subject{Context: alice, Name: wire, Node: node}, Key: "k", Value: "v"})
	require.NoError(t, idx.Close())

	reopened := openIndex(t, path)
	history, err := reopened.History(context.Background(), alice, node)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, uint64(0), history[0].Block)
}
