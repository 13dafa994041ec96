package layout

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind enumerates the record field kinds.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindAddr
	KindContenthash
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAddr:
		return "addr"
	case KindContenthash:
		return "contenthash"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field selects a single record field. The set of implementations is closed:
// Text, Addr and Contenthash.
type Field interface {
	Kind() Kind
	// Slot returns the head slot of the field's value for the given version.
	Slot(version uint64, context common.Address, node common.Hash) common.Hash
	isField()
}

// Text selects a text record by key.
type Text struct{ Key string }

// Addr selects an address record by SLIP-44 coin type.
type Addr struct{ CoinType uint64 }

// Contenthash selects the contenthash record.
type Contenthash struct{}

func (Text) Kind() Kind        { return KindText }
func (Addr) Kind() Kind        { return KindAddr }
func (Contenthash) Kind() Kind { return KindContenthash }

func (f Text) Slot(version uint64, context common.Address, node common.Hash) common.Hash {
	return TextSlot(version, context, node, f.Key)
}

func (f Addr) Slot(version uint64, context common.Address, node common.Hash) common.Hash {
	return AddrSlot(version, context, node, f.CoinType)
}

func (Contenthash) Slot(version uint64, context common.Address, node common.Hash) common.Hash {
	return ContenthashSlot(version, context, node)
}

func (Text) isField()        {}
func (Addr) isField()        {}
func (Contenthash) isField() {}

// FieldSlots lists every slot a proof of field must cover, given the head
// word currently stored for it: the version slot, the head slot and the data
// slots of a long value.
func FieldSlots(context common.Address, node common.Hash, version uint64, field Field, headWord common.Hash) ([]common.Hash, error) {
	head := field.Slot(version, context, node)
	value, err := Slots(head, headWord)
	if err != nil {
		return nil, err
	}
	return append([]common.Hash{VersionSlot(context, node)}, value...), nil
}
