package l2

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthAPI serves the read-only slice of the eth namespace that RPCReader
// consumes, so a gateway can run against an in-process Chain.
type EthAPI struct {
	chain *Chain
}

// NewRPCServer exposes chain under the eth namespace. The returned server is
// an http.Handler.
func NewRPCServer(chain *Chain) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &EthAPI{chain: chain}); err != nil {
		return nil, err
	}
	return server, nil
}

type StorageProofResult struct {
	Key   string       `json:"key"`
	Value *hexutil.Big `json:"value"`
	Proof []string     `json:"proof"`
}

type AccountProofResult struct {
	Address      common.Address       `json:"address"`
	AccountProof []string             `json:"accountProof"`
	Balance      *hexutil.Big         `json:"balance"`
	CodeHash     common.Hash          `json:"codeHash"`
	Nonce        hexutil.Uint64       `json:"nonce"`
	StorageHash  common.Hash          `json:"storageHash"`
	StorageProof []StorageProofResult `json:"storageProof"`
}

// Named tags (latest, safe, finalized, pending) all resolve to the head.
func (api *EthAPI) number(block rpc.BlockNumber) uint64 {
	if block < 0 {
		return api.chain.Head().Number.Uint64()
	}
	return uint64(block)
}

func (api *EthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Head().Number.Uint64())
}

// GetBlockByNumber returns the header only; the ledger has no transactions.
func (api *EthAPI) GetBlockByNumber(ctx context.Context, block rpc.BlockNumber, _ bool) (*types.Header, error) {
	header, err := api.chain.HeaderByNumber(ctx, api.number(block))
	if errors.Is(err, ErrUnknownBlock) {
		return nil, nil
	}
	return header, err
}

func (api *EthAPI) GetStorageAt(ctx context.Context, account common.Address, slot common.Hash, block rpc.BlockNumber) (hexutil.Bytes, error) {
	word, err := api.chain.StorageAt(ctx, account, slot, api.number(block))
	if err != nil {
		return nil, err
	}
	return word.Bytes(), nil
}

func (api *EthAPI) GetProof(ctx context.Context, account common.Address, keys []string, block rpc.BlockNumber) (*AccountProofResult, error) {
	slots := make([]common.Hash, len(keys))
	for i, key := range keys {
		raw, err := hexutil.Decode(key)
		if err != nil || len(raw) > common.HashLength {
			return nil, errors.New("invalid storage key " + key)
		}
		slots[i] = common.BytesToHash(raw)
	}
	proof, err := api.chain.GetProof(ctx, account, slots, api.number(block))
	if err != nil {
		return nil, err
	}
	out := &AccountProofResult{
		Address:      proof.Address,
		AccountProof: encodeNodes(proof.AccountProof),
		Balance:      new(hexutil.Big),
		CodeHash:     proof.CodeHash,
		Nonce:        hexutil.Uint64(proof.Nonce),
		StorageHash:  proof.StorageHash,
		StorageProof: make([]StorageProofResult, 0, len(proof.StorageProof)),
	}
	for _, sp := range proof.StorageProof {
		out.StorageProof = append(out.StorageProof, StorageProofResult{
			Key:   sp.Key.Hex(),
			Value: (*hexutil.Big)(sp.Value.Big()),
			Proof: encodeNodes(sp.Proof),
		})
	}
	return out, nil
}

func encodeNodes(nodes [][]byte) []string {
	out := make([]string, len(nodes))
	for i, node := range nodes {
		out[i] = hexutil.Encode(node)
	}
	return out
}
