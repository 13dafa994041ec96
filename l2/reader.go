// Package l2 provides access to the chain that hosts the record store: an
// in-process ledger for devnets and tests, and a JSON-RPC backed reader for
// real networks.
package l2

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MessagePasserAddress is the L2ToL1MessagePasser predeploy whose storage root
// is part of an output root.
var MessagePasserAddress = common.HexToAddress("0x4200000000000000000000000000000000000016")

// ErrUnknownBlock is returned for block numbers the chain has not produced.
var ErrUnknownBlock = errors.New("l2: unknown block")

// StateReader is the state access the gateway needs. Every read is pinned to
// an explicit block number.
type StateReader interface {
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, number uint64) (common.Hash, error)
	GetProof(ctx context.Context, account common.Address, slots []common.Hash, number uint64) (*AccountProof, error)
}

// HeadReader reports the newest block of the chain.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// AccountProof is an eth_getProof result with decoded proof nodes.
type AccountProof struct {
	Address      common.Address
	AccountProof [][]byte
	Nonce        uint64
	StorageHash  common.Hash
	CodeHash     common.Hash
	StorageProof []StorageResult
}

// StorageResult is the proof of a single storage slot.
type StorageResult struct {
	Key   common.Hash
	Value common.Hash
	Proof [][]byte
}
