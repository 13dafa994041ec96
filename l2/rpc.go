package l2

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCReader serves StateReader over an L2 execution client's JSON-RPC API.
type RPCReader struct {
	eth  *ethclient.Client
	geth *gethclient.Client
}

// DialRPC connects to an L2 JSON-RPC endpoint.
func DialRPC(ctx context.Context, url string) (*RPCReader, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial l2 rpc: %w", err)
	}
	return NewRPCReader(client), nil
}

// NewRPCReader wraps an established RPC client.
func NewRPCReader(client *rpc.Client) *RPCReader {
	return &RPCReader{
		eth:  ethclient.NewClient(client),
		geth: gethclient.New(client),
	}
}

// Close releases the underlying connection.
func (r *RPCReader) Close() {
	r.eth.Close()
}

// BlockNumber implements HeadReader.
func (r *RPCReader) BlockNumber(ctx context.Context) (uint64, error) {
	return r.eth.BlockNumber(ctx)
}

// HeaderByNumber implements StateReader.
func (r *RPCReader) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	header, err := r.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, number)
	}
	if err != nil {
		return nil, fmt.Errorf("header %d: %w", number, err)
	}
	return header, nil
}

// StorageAt implements StateReader.
func (r *RPCReader) StorageAt(ctx context.Context, account common.Address, slot common.Hash, number uint64) (common.Hash, error) {
	raw, err := r.eth.StorageAt(ctx, account, slot, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("storage %s@%d: %w", slot, number, err)
	}
	return common.BytesToHash(raw), nil
}

// GetProof implements StateReader.
func (r *RPCReader) GetProof(ctx context.Context, account common.Address, slots []common.Hash, number uint64) (*AccountProof, error) {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = slot.Hex()
	}
	res, err := r.geth.GetProof(ctx, account, keys, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("eth_getProof %s@%d: %w", account, number, err)
	}
	accountProof, err := decodeNodes(res.AccountProof)
	if err != nil {
		return nil, fmt.Errorf("account proof: %w", err)
	}
	out := &AccountProof{
		Address:      res.Address,
		AccountProof: accountProof,
		Nonce:        res.Nonce,
		StorageHash:  res.StorageHash,
		CodeHash:     res.CodeHash,
		StorageProof: make([]StorageResult, 0, len(res.StorageProof)),
	}
	if len(res.StorageProof) != len(slots) {
		return nil, fmt.Errorf("eth_getProof returned %d storage proofs for %d slots", len(res.StorageProof), len(slots))
	}
	for i, sp := range res.StorageProof {
		proof, err := decodeNodes(sp.Proof)
		if err != nil {
			return nil, fmt.Errorf("storage proof %d: %w", i, err)
		}
		var value common.Hash
		if sp.Value != nil {
			value = common.BigToHash(sp.Value)
		}
		out.StorageProof = append(out.StorageProof, StorageResult{Key: slots[i], Value: value, Proof: proof})
	}
	return out, nil
}

func decodeNodes(encoded []string) ([][]byte, error) {
	nodes := make([][]byte, len(encoded))
	for i, node := range encoded {
		raw, err := hexutil.Decode(node)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes[i] = raw
	}
	return nodes, nil
}
