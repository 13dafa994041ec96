// Package recordstore implements the versioned, permissioned record store that
// lives in the storage of a single L2 account.
//
// Records are addressed by (context, node, version, field). The context is the
// account that owns the records, which need not be the owner of the name.
// Clearing a record set bumps the version counter, leaving old records in
// storage but unreachable through reads.
package recordstore

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"l2resolver/ens"
	"l2resolver/events"
	"l2resolver/layout"
)

// ErrNotAuthorised is returned when the caller may not write the context's
// records for a node.
var ErrNotAuthorised = errors.New("recordstore: not authorised")

// Storage is the account storage the store executes against.
type Storage interface {
	GetState(slot common.Hash) common.Hash
	SetState(slot common.Hash, value common.Hash)
}

// Store reads and writes records. Mutations are not safe for concurrent use;
// the ledger hosting the store serialises them.
type Store struct {
	state   Storage
	emitter events.Emitter
}

// New returns a store over state. A nil emitter discards events.
func New(state Storage, emitter events.Emitter) *Store {
	s := &Store{state: state}
	s.SetEmitter(emitter)
	return s
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

func (s *Store) emit(evt events.Event) {
	if s.emitter != nil {
		s.emitter.Emit(evt)
	}
}

// RecordVersion returns the current version of the context's records for node.
func (s *Store) RecordVersion(context common.Address, node common.Hash) uint64 {
	version, _ := layout.DecodeVersion(s.state.GetState(layout.VersionSlot(context, node)))
	return version
}

// IsApprovedFor reports whether delegate may write context's records for node.
func (s *Store) IsApprovedFor(context common.Address, node common.Hash, delegate common.Address) bool {
	return s.state.GetState(layout.ApprovalSlot(context, node, delegate)) != (common.Hash{})
}

// Value returns the raw bytes of field at the current version. Unset fields
// read as empty.
func (s *Store) Value(context common.Address, node common.Hash, field layout.Field) ([]byte, error) {
	head := field.Slot(s.RecordVersion(context, node), context, node)
	value, err := layout.ReadBytes(s.state.GetState, head)
	if err != nil {
		return nil, fmt.Errorf("read %s record: %w", field.Kind(), err)
	}
	return value, nil
}

// Text returns the text record for key.
func (s *Store) Text(context common.Address, node common.Hash, key string) (string, error) {
	value, err := s.Value(context, node, layout.Text{Key: key})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// AddrCoin returns the binary address stored for coinType.
func (s *Store) AddrCoin(context common.Address, node common.Hash, coinType uint64) ([]byte, error) {
	return s.Value(context, node, layout.Addr{CoinType: coinType})
}

// Addr returns the default-chain address. Payloads that are not 20 bytes long
// read as the zero address.
func (s *Store) Addr(context common.Address, node common.Hash) (common.Address, error) {
	raw, err := s.AddrCoin(context, node, layout.CoinTypeETH)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, nil
	}
	return common.BytesToAddress(raw), nil
}

// Contenthash returns the contenthash record.
func (s *Store) Contenthash(context common.Address, node common.Hash) ([]byte, error) {
	return s.Value(context, node, layout.Contenthash{})
}

// subject resolves a wire-format name and checks that caller may act for
// context on it.
func (s *Store) subject(caller, context common.Address, name []byte) (events.Subject, error) {
	_, node, err := ens.NodeFromDNS(name)
	if err != nil {
		return events.Subject{}, err
	}
	if caller != context && !s.IsApprovedFor(context, node, caller) {
		return events.Subject{}, fmt.Errorf("%w: %s for %s on %s", ErrNotAuthorised, caller.Hex(), context.Hex(), node.Hex())
	}
	return events.Subject{
		Context: context,
		Name:    common.CopyBytes(name),
		Node:    node,
		Version: s.RecordVersion(context, node),
	}, nil
}

// writeBytes stores value at head and zeroes data slots left over from a
// longer previous value.
func (s *Store) writeBytes(head common.Hash, value []byte) error {
	words, err := layout.EncodeBytes(head, value)
	if err != nil {
		return err
	}
	previous, err := layout.Slots(head, s.state.GetState(head))
	if err != nil {
		previous = []common.Hash{head}
	}
	for _, slot := range previous[min(len(previous), len(words)):] {
		s.state.SetState(slot, common.Hash{})
	}
	for _, w := range words {
		s.state.SetState(w.Slot, w.Value)
	}
	return nil
}
