package ens

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNameHashVectors(t *testing.T) {
	require.Equal(t, common.Hash{}, NameHash(""))
	require.Equal(t, common.HexToHash("0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"), NameHash("eth"))
	require.Equal(t, common.HexToHash("0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"), NameHash("foo.eth"))
	require.Equal(t, NameHash("foo.eth"), NameHash("foo.eth."))
}

func TestDNSRoundTrip(t *testing.T) {
	wire, err := DNSEncode("alice.eth")
	require.NoError(t, err)
	require.Equal(t, []byte("\x05alice\x03eth\x00"), wire)

	name, node, err := NodeFromDNS(wire)
	require.NoError(t, err)
	require.Equal(t, "alice.eth", name)
	require.Equal(t, NameHash("alice.eth"), node)

	root, err := DNSEncode("")
	require.NoError(t, err)
	require.Equal(t, []byte{0}, root)
	decoded, err := DNSDecode(root)
	require.NoError(t, err)
	require.Equal(t, "", decoded)
}

func TestDNSDecodeKeepsUTF8Labels(t *testing.T) {
	wire := append([]byte{byte(len("ü"))}, []byte("ü")...)
	wire = append(wire, 3, 'e', 't', 'h', 0)
	name, err := DNSDecode(wire)
	require.NoError(t, err)
	require.Equal(t, "ü.eth", name)
}

func TestNodeFromDNSHashesWireLabels(t *testing.T) {
	eth := ethcrypto.Keccak256Hash(common.Hash{}.Bytes(), ethcrypto.Keccak256([]byte("eth")))
	for _, label := range []string{`a\`, `a\065`, `a"b`, `a(b`} {
		wire := append([]byte{byte(len(label))}, label...)
		wire = append(wire, 3, 'e', 't', 'h', 0)

		name, node, err := NodeFromDNS(wire)
		require.NoError(t, err)
		require.Equal(t, label+".eth", name)
		want := ethcrypto.Keccak256Hash(eth.Bytes(), ethcrypto.Keccak256([]byte(label)))
		require.Equalf(t, want, node, "label %q", label)
	}
}

func TestDNSDecodeRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":        {},
		"no root":      []byte("\x05alice"),
		"overrun":      []byte("\x09alice\x00"),
		"trailing":     []byte("\x03eth\x00\x00"),
		"dotted label": []byte("\x03a.b\x00"),
	}
	for name, wire := range cases {
		_, err := DNSDecode(wire)
		require.Truef(t, errors.Is(err, ErrInvalidName), "%s: expected ErrInvalidName, got %v", name, err)
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Alice.ETH. ")
	require.NoError(t, err)
	require.Equal(t, "alice.eth", got)

	_, err = Normalize("alice..eth")
	require.ErrorIs(t, err, ErrInvalidName)

	root, err := Normalize(".")
	require.NoError(t, err)
	require.Equal(t, "", root)
}

func TestParent(t *testing.T) {
	require.Equal(t, "parent.eth", Parent("subname.parent.eth"))
	require.Equal(t, "", Parent("eth"))
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry()
	owner := common.HexToAddress("0x8111DfD23B99233a7ae871b7c09cCF0722847d89")
	require.NoError(t, reg.SetOwner("Alice.eth", owner))

	got, err := OwnerOf(context.Background(), reg, "alice.eth")
	require.NoError(t, err)
	require.Equal(t, owner, got)

	unknown, err := reg.Owner(context.Background(), NameHash("bob.eth"))
	require.NoError(t, err)
	require.Equal(t, common.Address{}, unknown)
}

type stubCaller struct {
	calls  []ethereum.CallMsg
	output []byte
	err    error
}

func (s *stubCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls = append(s.calls, call)
	return s.output, s.err
}

func TestRPCRegistryOwner(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	caller := &stubCaller{output: common.LeftPadBytes(owner.Bytes(), 32)}
	registryAddr := common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")
	reg, err := NewRPCRegistry(caller, registryAddr)
	require.NoError(t, err)

	node := NameHash("alice.eth")
	got, err := reg.Owner(context.Background(), node)
	require.NoError(t, err)
	require.Equal(t, owner, got)

	require.Len(t, caller.calls, 1)
	require.Equal(t, registryAddr, *caller.calls[0].To)
	// owner(bytes32) selector followed by the node.
	require.Equal(t, common.FromHex("0x02571be3"), caller.calls[0].Data[:4])
	require.Equal(t, node.Bytes(), caller.calls[0].Data[4:])
}

func TestRPCRegistryPropagatesCallErrors(t *testing.T) {
	reg, err := NewRPCRegistry(&stubCaller{err: errors.New("boom")}, common.Address{})
	require.NoError(t, err)
	_, err = reg.Owner(context.Background(), NameHash("alice.eth"))
	require.ErrorContains(t, err, "boom")
}
