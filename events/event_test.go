package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"l2resolver/ens"
)

func TestRecorderDrain(t *testing.T) {
	var rec Recorder
	rec.Emit(VersionChanged{Subject: Subject{Version: 1}})
	rec.Emit(VersionChanged{Subject: Subject{Version: 2}})

	require.Len(t, rec.Events(), 2)
	drained := rec.Drain()
	require.Len(t, drained, 2)
	require.Empty(t, rec.Events())
}

func TestFanoutSkipsNil(t *testing.T) {
	var a, b Recorder
	Fanout{&a, nil, &b}.Emit(Approved{})
	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
}

func TestEntryOfUnwrapsStamped(t *testing.T) {
	ctx := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	evt := Stamped{Block: 7, Event: TextChanged{
		Subject: Subject{Context: ctx, Name: wire, Version: 3},
		Key:     "network.profile",
		Value:   `{"a":1}`,
	}}
	require.Equal(t, TypeTextChanged, evt.EventType())

	entry, ok := EntryOf(evt)
	require.True(t, ok)
	require.Equal(t, TypeTextChanged, entry.Type)
	require.Equal(t, "alice.eth", entry.Attributes["domain"])
	require.Equal(t, "0x05616c69636503657468"+"00", entry.Attributes["name"])
	require.Equal(t, "3", entry.Attributes["version"])
	require.Equal(t, ctx.Hex(), entry.Attributes["context"])
	require.Equal(t, `{"a":1}`, entry.Attributes["value"])
}

func TestAddressEntries(t *testing.T) {
	entry := AddressChanged{CoinType: 60, Address: []byte{0xde, 0xad}}.Entry()
	require.Equal(t, "60", entry.Attributes["coinType"])
	require.Equal(t, "0xdead", entry.Attributes["address"])

	approved := Approved{Delegate: common.HexToAddress("0x1"), Approved: true}.Entry()
	require.Equal(t, "true", approved.Attributes["approved"])
}
