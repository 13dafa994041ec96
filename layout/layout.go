// Package layout defines where record store data lives in account storage.
//
// The record store keeps its state in the storage of a single L2 account
// using Solidity's mapping and dynamic-bytes layout. Writers and the proof
// verifier both derive slots through this package; a divergence between the
// two would let a gateway prove one record while claiming another.
package layout

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Base slots of the record store mappings.
const (
	SlotRecordVersions uint64 = iota
	SlotTexts
	SlotAddresses
	SlotContenthashes
	SlotApprovals
)

// CoinTypeETH is the default-chain coin type (SLIP-44 60).
const CoinTypeETH uint64 = 60

// VersionSlot locates recordVersions[context][node].
func VersionSlot(context common.Address, node common.Hash) common.Hash {
	p := mapKey(addressWord(context), uintWord(SlotRecordVersions))
	return mapKey(node, p)
}

// ApprovalSlot locates approvals[context][node][delegate].
func ApprovalSlot(context common.Address, node common.Hash, delegate common.Address) common.Hash {
	p := mapKey(addressWord(context), uintWord(SlotApprovals))
	p = mapKey(node, p)
	return mapKey(addressWord(delegate), p)
}

// TextSlot locates texts[version][context][node][key].
func TextSlot(version uint64, context common.Address, node common.Hash, key string) common.Hash {
	return mapStringKey([]byte(key), recordBase(SlotTexts, version, context, node))
}

// AddrSlot locates addresses[version][context][node][coinType].
func AddrSlot(version uint64, context common.Address, node common.Hash, coinType uint64) common.Hash {
	return mapKey(uintWord(coinType), recordBase(SlotAddresses, version, context, node))
}

// ContenthashSlot locates contenthashes[version][context][node].
func ContenthashSlot(version uint64, context common.Address, node common.Hash) common.Hash {
	return recordBase(SlotContenthashes, version, context, node)
}

func recordBase(base, version uint64, context common.Address, node common.Hash) common.Hash {
	p := mapKey(uintWord(version), uintWord(base))
	p = mapKey(addressWord(context), p)
	return mapKey(node, p)
}

func mapKey(key, slot common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash(key[:], slot[:])
}

func mapStringKey(key []byte, slot common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash(key, slot[:])
}

func addressWord(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func uintWord(v uint64) common.Hash {
	return common.Hash(uint256.NewInt(v).Bytes32())
}

// VersionWord encodes a record version as a storage word.
func VersionWord(version uint64) common.Hash {
	return uintWord(version)
}

// DecodeVersion reads a record version from a storage word. ok is false if the
// word does not fit a uint64.
func DecodeVersion(word common.Hash) (uint64, bool) {
	for _, b := range word[:24] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(word[24:]), true
}

// BoolWord encodes a boolean storage value.
func BoolWord(v bool) common.Hash {
	if v {
		return common.Hash{31: 1}
	}
	return common.Hash{}
}
