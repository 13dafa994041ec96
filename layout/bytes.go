package layout

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MaxValueLength caps the length of a stored dynamic value.
const MaxValueLength = 64 * 1024

// ErrCorruptValue is returned when a head slot does not decode to a valid
// dynamic bytes encoding.
var ErrCorruptValue = errors.New("layout: corrupt dynamic value")

// Word is a single storage write.
type Word struct {
	Slot  common.Hash
	Value common.Hash
}

// Head describes a decoded dynamic bytes head slot.
type Head struct {
	Length uint64
	// Inline is set when the value lives inside the head slot itself.
	Inline bool
}

// DataSlots is the number of data slots that follow the head.
func (h Head) DataSlots() uint64 {
	if h.Inline {
		return 0
	}
	return (h.Length + 31) / 32
}

// DecodeHead interprets the word stored at a dynamic value's head slot.
func DecodeHead(word common.Hash) (Head, error) {
	if word[31]&1 == 0 {
		length := uint64(word[31] / 2)
		if length > 31 {
			return Head{}, fmt.Errorf("%w: inline length %d", ErrCorruptValue, length)
		}
		for _, b := range word[length:31] {
			if b != 0 {
				return Head{}, fmt.Errorf("%w: dirty inline padding", ErrCorruptValue)
			}
		}
		return Head{Length: length, Inline: true}, nil
	}
	raw := new(uint256.Int).SetBytes32(word[:])
	raw.Rsh(raw, 1)
	if !raw.IsUint64() || raw.Uint64() > MaxValueLength {
		return Head{}, fmt.Errorf("%w: length exceeds %d bytes", ErrCorruptValue, MaxValueLength)
	}
	length := raw.Uint64()
	if length < 32 {
		return Head{}, fmt.Errorf("%w: long encoding of %d bytes", ErrCorruptValue, length)
	}
	return Head{Length: length}, nil
}

// DataSlot returns keccak256(head)+index, the location of the index-th data
// word of a long value.
func DataSlot(head common.Hash, index uint64) common.Hash {
	base := new(uint256.Int).SetBytes32(ethcrypto.Keccak256(head[:]))
	base.AddUint64(base, index)
	return common.Hash(base.Bytes32())
}

// EncodeBytes returns the storage words holding value at head.
func EncodeBytes(head common.Hash, value []byte) ([]Word, error) {
	length := uint64(len(value))
	if length > MaxValueLength {
		return nil, fmt.Errorf("value of %d bytes exceeds %d", length, MaxValueLength)
	}
	if length < 32 {
		var word common.Hash
		copy(word[:], value)
		word[31] = byte(length * 2)
		return []Word{{Slot: head, Value: word}}, nil
	}
	words := make([]Word, 0, 1+(length+31)/32)
	words = append(words, Word{Slot: head, Value: uintWord(length*2 + 1)})
	for i := uint64(0); i*32 < length; i++ {
		var chunk common.Hash
		copy(chunk[:], value[i*32:])
		words = append(words, Word{Slot: DataSlot(head, i), Value: chunk})
	}
	return words, nil
}

// DecodeBytes rebuilds a value from its head word and data words. The number
// of data words must match the head.
func DecodeBytes(headWord common.Hash, data []common.Hash) ([]byte, error) {
	head, err := DecodeHead(headWord)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != head.DataSlots() {
		return nil, fmt.Errorf("%w: expected %d data words, got %d", ErrCorruptValue, head.DataSlots(), len(data))
	}
	if head.Inline {
		return append([]byte(nil), headWord[:head.Length]...), nil
	}
	out := make([]byte, 0, head.DataSlots()*32)
	for _, word := range data {
		out = append(out, word[:]...)
	}
	return out[:head.Length], nil
}

// ReadBytes loads a dynamic value through load.
func ReadBytes(load func(common.Hash) common.Hash, head common.Hash) ([]byte, error) {
	headWord := load(head)
	decoded, err := DecodeHead(headWord)
	if err != nil {
		return nil, err
	}
	data := make([]common.Hash, decoded.DataSlots())
	for i := range data {
		data[i] = load(DataSlot(head, uint64(i)))
	}
	return DecodeBytes(headWord, data)
}

// Slots lists the head slot followed by every data slot of the value
// currently described by headWord.
func Slots(head, headWord common.Hash) ([]common.Hash, error) {
	decoded, err := DecodeHead(headWord)
	if err != nil {
		return nil, err
	}
	slots := make([]common.Hash, 0, 1+decoded.DataSlots())
	slots = append(slots, head)
	for i := uint64(0); i < decoded.DataSlots(); i++ {
		slots = append(slots, DataSlot(head, i))
	}
	return slots, nil
}
