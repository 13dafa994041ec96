package layout

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVersionSlotMatchesSolidityLayout(t *testing.T) {
	ctx := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := common.HexToHash("0x01")

	inner := ethcrypto.Keccak256(common.LeftPadBytes(ctx.Bytes(), 32), make([]byte, 32))
	want := common.BytesToHash(ethcrypto.Keccak256(node[:], inner))
	require.Equal(t, want, VersionSlot(ctx, node))
}

func TestTextSlotUsesRawKeyBytes(t *testing.T) {
	ctx := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	node := common.HexToHash("0x02")

	p := ethcrypto.Keccak256(common.LeftPadBytes([]byte{3}, 32), common.LeftPadBytes([]byte{byte(SlotTexts)}, 32))
	p = ethcrypto.Keccak256(common.LeftPadBytes(ctx.Bytes(), 32), p)
	p = ethcrypto.Keccak256(node[:], p)
	want := common.BytesToHash(ethcrypto.Keccak256([]byte("avatar"), p))
	require.Equal(t, want, TextSlot(3, ctx, node, "avatar"))
}

func TestSlotsDifferAcrossVersionsAndFields(t *testing.T) {
	ctx := common.HexToAddress("0x1")
	node := common.HexToHash("0x2")

	require.NotEqual(t, TextSlot(0, ctx, node, "a"), TextSlot(1, ctx, node, "a"))
	require.NotEqual(t, AddrSlot(0, ctx, node, CoinTypeETH), AddrSlot(0, ctx, node, 0))
	require.NotEqual(t, ContenthashSlot(0, ctx, node), ContenthashSlot(0, common.HexToAddress("0x3"), node))
	require.NotEqual(t, ApprovalSlot(ctx, node, ctx), ApprovalSlot(ctx, node, common.HexToAddress("0x4")))
}

func TestEncodeShortValueInline(t *testing.T) {
	head := common.HexToHash("0x10")
	words, err := EncodeBytes(head, []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Len(t, words, 1)
	require.Equal(t, head, words[0].Slot)
	require.Equal(t, byte(14), words[0].Value[31])

	value, err := DecodeBytes(words[0].Value, nil)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(value))
}

func TestEncodeLongValueUsesDataSlots(t *testing.T) {
	head := common.HexToHash("0x10")
	value := bytes.Repeat([]byte{0xab}, 70)
	words, err := EncodeBytes(head, value)
	require.NoError(t, err)
	require.Len(t, words, 4)
	require.Equal(t, VersionWord(141), words[0].Value)
	require.Equal(t, DataSlot(head, 2), words[3].Slot)

	h, err := DecodeHead(words[0].Value)
	require.NoError(t, err)
	require.False(t, h.Inline)
	require.Equal(t, uint64(3), h.DataSlots())
}

func TestDecodeRejectsCorruptHeads(t *testing.T) {
	var dirty common.Hash
	dirty[0] = 1
	dirty[20] = 1
	dirty[31] = 2
	_, err := DecodeHead(dirty)
	require.ErrorIs(t, err, ErrCorruptValue)

	_, err = DecodeHead(VersionWord(2*10 + 1))
	require.ErrorIs(t, err, ErrCorruptValue)

	_, err = DecodeHead(VersionWord(2*(MaxValueLength+1) + 1))
	require.ErrorIs(t, err, ErrCorruptValue)

	_, err = DecodeBytes(VersionWord(2*40+1), []common.Hash{{}})
	require.ErrorIs(t, err, ErrCorruptValue)
}

func TestEncodeRejectsOversizedValue(t *testing.T) {
	_, err := EncodeBytes(common.Hash{}, make([]byte, MaxValueLength+1))
	require.Error(t, err)
}

func TestDecodeVersion(t *testing.T) {
	v, ok := DecodeVersion(VersionWord(42))
	require.True(t, ok)
	require.Equal(t, uint64(42), v)

	_, ok = DecodeVersion(common.Hash{0: 1})
	require.False(t, ok)
}

func TestBytesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "value")
		head := common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "head"))

		words, err := EncodeBytes(head, value)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		state := make(map[common.Hash]common.Hash, len(words))
		for _, w := range words {
			state[w.Slot] = w.Value
		}
		got, err := ReadBytes(func(slot common.Hash) common.Hash { return state[slot] }, head)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Fatalf("round trip mismatch: got %x want %x", got, value)
		}
		slots, err := Slots(head, words[0].Value)
		if err != nil {
			t.Fatalf("slots: %v", err)
		}
		if len(slots) != len(words) {
			t.Fatalf("slot count %d, words %d", len(slots), len(words))
		}
	})
}

func TestFieldSlotsCoverVersionHeadAndData(t *testing.T) {
	ctx := common.HexToAddress("0x1")
	node := common.HexToHash("0x2")
	field := Text{Key: "description"}

	head := field.Slot(4, ctx, node)
	words, err := EncodeBytes(head, bytes.Repeat([]byte("x"), 40))
	require.NoError(t, err)

	slots, err := FieldSlots(ctx, node, 4, field, words[0].Value)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{VersionSlot(ctx, node), head, DataSlot(head, 0), DataSlot(head, 1)}, slots)

	slots, err = FieldSlots(ctx, node, 4, Contenthash{}, common.Hash{})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Equal(t, "contenthash", Contenthash{}.Kind().String())
}
