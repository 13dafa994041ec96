package recordstore

import (
	"github.com/ethereum/go-ethereum/common"

	"l2resolver/events"
	"l2resolver/layout"
)

// SetText writes a text record under the caller's own context.
func (s *Store) SetText(caller common.Address, name []byte, key, value string) error {
	return s.SetTextFor(caller, caller, name, key, value)
}

// SetTextFor writes a text record under context. The caller must be the
// context or hold an approval for the name's node.
func (s *Store) SetTextFor(caller, context common.Address, name []byte, key, value string) error {
	subj, err := s.subject(caller, context, name)
	if err != nil {
		return err
	}
	head := layout.TextSlot(subj.Version, context, subj.Node, key)
	if err := s.writeBytes(head, []byte(value)); err != nil {
		return err
	}
	s.emit(events.TextChanged{Subject: subj, Key: key, Value: value})
	return nil
}

// SetAddr writes the default-chain address under the caller's own context.
func (s *Store) SetAddr(caller common.Address, name []byte, addr common.Address) error {
	return s.SetAddrFor(caller, caller, name, addr)
}

// SetAddrFor writes the default-chain address under context. Both an
// AddressChanged and an AddrChanged event are emitted.
func (s *Store) SetAddrFor(caller, context common.Address, name []byte, addr common.Address) error {
	subj, err := s.setAddr(caller, context, name, layout.CoinTypeETH, addr.Bytes())
	if err != nil {
		return err
	}
	s.emit(events.AddrChanged{Subject: subj, Address: addr})
	return nil
}

// SetAddrCoin writes a chain-native binary address for coinType under the
// caller's own context.
func (s *Store) SetAddrCoin(caller common.Address, name []byte, coinType uint64, addr []byte) error {
	return s.SetAddrCoinFor(caller, caller, name, coinType, addr)
}

// SetAddrCoinFor writes a binary address for coinType under context.
func (s *Store) SetAddrCoinFor(caller, context common.Address, name []byte, coinType uint64, addr []byte) error {
	subj, err := s.setAddr(caller, context, name, coinType, addr)
	if err != nil {
		return err
	}
	if coinType == layout.CoinTypeETH && len(addr) == common.AddressLength {
		s.emit(events.AddrChanged{Subject: subj, Address: common.BytesToAddress(addr)})
	}
	return nil
}

func (s *Store) setAddr(caller, context common.Address, name []byte, coinType uint64, addr []byte) (events.Subject, error) {
	subj, err := s.subject(caller, context, name)
	if err != nil {
		return events.Subject{}, err
	}
	head := layout.AddrSlot(subj.Version, context, subj.Node, coinType)
	if err := s.writeBytes(head, addr); err != nil {
		return events.Subject{}, err
	}
	s.emit(events.AddressChanged{Subject: subj, CoinType: coinType, Address: common.CopyBytes(addr)})
	return subj, nil
}

// SetContenthash writes the contenthash under the caller's own context.
func (s *Store) SetContenthash(caller common.Address, name []byte, hash []byte) error {
	return s.SetContenthashFor(caller, caller, name, hash)
}

// SetContenthashFor writes the contenthash under context.
func (s *Store) SetContenthashFor(caller, context common.Address, name []byte, hash []byte) error {
	subj, err := s.subject(caller, context, name)
	if err != nil {
		return err
	}
	head := layout.ContenthashSlot(subj.Version, context, subj.Node)
	if err := s.writeBytes(head, hash); err != nil {
		return err
	}
	s.emit(events.ContenthashChanged{Subject: subj, Hash: common.CopyBytes(hash)})
	return nil
}

// Approve grants or revokes delegate's right to write the caller's records
// for the name's node. The grant does not extend to subnames.
func (s *Store) Approve(caller common.Address, name []byte, delegate common.Address, approved bool) error {
	subj, err := s.subject(caller, caller, name)
	if err != nil {
		return err
	}
	s.state.SetState(layout.ApprovalSlot(caller, subj.Node, delegate), layout.BoolWord(approved))
	s.emit(events.Approved{Subject: subj, Delegate: delegate, Approved: approved})
	return nil
}

// ClearRecords makes every record the caller holds for the name unreachable by
// bumping its version. Each call bumps the version by one.
func (s *Store) ClearRecords(caller common.Address, name []byte) error {
	subj, err := s.subject(caller, caller, name)
	if err != nil {
		return err
	}
	subj.Version++
	s.state.SetState(layout.VersionSlot(caller, subj.Node), layout.VersionWord(subj.Version))
	s.emit(events.VersionChanged{Subject: subj})
	return nil
}
