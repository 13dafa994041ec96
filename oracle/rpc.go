package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// OutputOracleABI is the read surface of the L2OutputOracle contract.
const OutputOracleABI = `[
{"type":"function","name":"getL2Output","stateMutability":"view","inputs":[{"name":"_l2OutputIndex","type":"uint256"}],"outputs":[{"name":"","type":"tuple","internalType":"struct Types.OutputProposal","components":[{"name":"outputRoot","type":"bytes32"},{"name":"timestamp","type":"uint128"},{"name":"l2BlockNumber","type":"uint128"}]}]},
{"type":"function","name":"getL2OutputIndexAfter","stateMutability":"view","inputs":[{"name":"_l2BlockNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"nextOutputIndex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

type outputProposal struct {
	OutputRoot    [32]byte
	Timestamp     *big.Int
	L2BlockNumber *big.Int
}

// RPCReader reads checkpoints from an L2OutputOracle deployed on L1.
type RPCReader struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewRPCReader binds the oracle deployed at address.
func NewRPCReader(caller ethereum.ContractCaller, address common.Address) (*RPCReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller required")
	}
	parsed, err := abi.JSON(strings.NewReader(OutputOracleABI))
	if err != nil {
		return nil, fmt.Errorf("parse output oracle abi: %w", err)
	}
	return &RPCReader{caller: caller, address: address, abi: parsed}, nil
}

func (r *RPCReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := r.address
	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := r.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output arity %d", method, len(values))
	}
	return values, nil
}

func (r *RPCReader) uintCall(ctx context.Context, method string, args ...interface{}) (uint64, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("unexpected %s output %v", method, values[0])
	}
	return v.Uint64(), nil
}

func (r *RPCReader) nextIndex(ctx context.Context) (uint64, error) {
	return r.uintCall(ctx, "nextOutputIndex")
}

// CheckpointByIndex implements Reader.
func (r *RPCReader) CheckpointByIndex(ctx context.Context, index uint64) (Checkpoint, error) {
	next, err := r.nextIndex(ctx)
	if err != nil {
		return Checkpoint{}, err
	}
	if index >= next {
		return Checkpoint{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	values, err := r.call(ctx, "getL2Output", new(big.Int).SetUint64(index))
	if err != nil {
		return Checkpoint{}, err
	}
	proposal := *abi.ConvertType(values[0], new(outputProposal)).(*outputProposal)
	return Checkpoint{
		Index:         index,
		OutputRoot:    proposal.OutputRoot,
		L2BlockNumber: proposal.L2BlockNumber.Uint64(),
		Timestamp:     proposal.Timestamp.Uint64(),
	}, nil
}

// LatestCheckpoint implements Reader.
func (r *RPCReader) LatestCheckpoint(ctx context.Context) (Checkpoint, error) {
	next, err := r.nextIndex(ctx)
	if err != nil {
		return Checkpoint{}, err
	}
	if next == 0 {
		return Checkpoint{}, fmt.Errorf("%w: no outputs proposed", ErrNotFound)
	}
	return r.CheckpointByIndex(ctx, next-1)
}

// LatestCheckpointAtOrBefore implements Reader.
func (r *RPCReader) LatestCheckpointAtOrBefore(ctx context.Context, l2Block uint64) (Checkpoint, error) {
	latest, err := r.LatestCheckpoint(ctx)
	if err != nil {
		return Checkpoint{}, err
	}
	if latest.L2BlockNumber <= l2Block {
		return latest, nil
	}
	// getL2OutputIndexAfter returns the first output at or after the block.
	index, err := r.uintCall(ctx, "getL2OutputIndexAfter", new(big.Int).SetUint64(l2Block))
	if err != nil {
		return Checkpoint{}, err
	}
	cp, err := r.CheckpointByIndex(ctx, index)
	if err != nil {
		return Checkpoint{}, err
	}
	if cp.L2BlockNumber == l2Block {
		return cp, nil
	}
	if index == 0 {
		return Checkpoint{}, fmt.Errorf("%w: at or before block %d", ErrNotFound, l2Block)
	}
	return r.CheckpointByIndex(ctx, index-1)
}
