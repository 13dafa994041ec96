package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"l2resolver/ens"
)

const (
	TypeTextChanged        = "record.text.changed"
	TypeAddressChanged     = "record.address.changed"
	TypeAddrChanged        = "record.addr.changed"
	TypeContenthashChanged = "record.contenthash.changed"
	TypeVersionChanged     = "record.version.changed"
	TypeApproved           = "record.approved"
)

// Subject identifies the record an event refers to. Name is DNS wire encoded.
type Subject struct {
	Context common.Address
	Name    []byte
	Node    common.Hash
	Version uint64
}

func (s Subject) attributes() map[string]string {
	attrs := map[string]string{
		"context": s.Context.Hex(),
		"name":    hexutil.Encode(s.Name),
		"node":    s.Node.Hex(),
		"version": strconv.FormatUint(s.Version, 10),
	}
	if domain, err := ens.DNSDecode(s.Name); err == nil {
		attrs["domain"] = domain
	}
	return attrs
}

// TextChanged is emitted when a text record is written.
type TextChanged struct {
	Subject
	Key   string
	Value string
}

// EventType implements the Event interface.
func (TextChanged) EventType() string { return TypeTextChanged }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e TextChanged) Entry() *Entry {
	attrs := e.attributes()
	attrs["key"] = e.Key
	attrs["value"] = e.Value
	return &Entry{Type: TypeTextChanged, Attributes: attrs}
}

// AddressChanged is emitted for every address write, including the default
// coin type.
type AddressChanged struct {
	Subject
	CoinType uint64
	Address  []byte
}

// EventType implements the Event interface.
func (AddressChanged) EventType() string { return TypeAddressChanged }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e AddressChanged) Entry() *Entry {
	attrs := e.attributes()
	attrs["coinType"] = strconv.FormatUint(e.CoinType, 10)
	attrs["address"] = hexutil.Encode(e.Address)
	return &Entry{Type: TypeAddressChanged, Attributes: attrs}
}

// AddrChanged is emitted alongside AddressChanged when the default coin type
// is written.
type AddrChanged struct {
	Subject
	Address common.Address
}

// EventType implements the Event interface.
func (AddrChanged) EventType() string { return TypeAddrChanged }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e AddrChanged) Entry() *Entry {
	attrs := e.attributes()
	attrs["address"] = e.Address.Hex()
	return &Entry{Type: TypeAddrChanged, Attributes: attrs}
}

// ContenthashChanged is emitted when a contenthash is written.
type ContenthashChanged struct {
	Subject
	Hash []byte
}

// EventType implements the Event interface.
func (ContenthashChanged) EventType() string { return TypeContenthashChanged }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e ContenthashChanged) Entry() *Entry {
	attrs := e.attributes()
	attrs["hash"] = hexutil.Encode(e.Hash)
	return &Entry{Type: TypeContenthashChanged, Attributes: attrs}
}

// VersionChanged is emitted when a record is cleared. Version holds the new
// version.
type VersionChanged struct {
	Subject
}

// EventType implements the Event interface.
func (VersionChanged) EventType() string { return TypeVersionChanged }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e VersionChanged) Entry() *Entry {
	return &Entry{Type: TypeVersionChanged, Attributes: e.attributes()}
}

// Approved is emitted when a context owner grants or revokes a delegate.
type Approved struct {
	Subject
	Delegate common.Address
	Approved bool
}

// EventType implements the Event interface.
func (Approved) EventType() string { return TypeApproved }

// Entry converts the strongly typed event to the generic representation used by subscribers.
func (e Approved) Entry() *Entry {
	attrs := e.attributes()
	attrs["delegate"] = e.Delegate.Hex()
	attrs["approved"] = strconv.FormatBool(e.Approved)
	return &Entry{Type: TypeApproved, Attributes: attrs}
}

// EntryOf returns the generic representation of evt, unwrapping Stamped
// events. ok is false when the event type has no generic form.
func EntryOf(evt Event) (*Entry, bool) {
	if stamped, isStamped := evt.(Stamped); isStamped {
		evt = stamped.Event
	}
	typed, ok := evt.(Typed)
	if !ok {
		return nil, false
	}
	return typed.Entry(), true
}
