package ens

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Registry resolves the context (namespace owner) responsible for a node.
type Registry interface {
	Owner(ctx context.Context, node common.Hash) (common.Address, error)
}

// OwnerOf normalises the name and looks up its owner.
func OwnerOf(ctx context.Context, registry Registry, name string) (common.Address, error) {
	normalized, err := Normalize(name)
	if err != nil {
		return common.Address{}, err
	}
	return registry.Owner(ctx, NameHash(normalized))
}

// StaticRegistry is an in-memory Registry used by the devnet and tests.
type StaticRegistry struct {
	mu     sync.RWMutex
	owners map[common.Hash]common.Address
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{owners: make(map[common.Hash]common.Address)}
}

// SetOwner assigns owner to the normalised name.
func (r *StaticRegistry) SetOwner(name string, owner common.Address) error {
	normalized, err := Normalize(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[NameHash(normalized)] = owner
	return nil
}

// Owner implements Registry. Unknown nodes resolve to the zero address.
func (r *StaticRegistry) Owner(_ context.Context, node common.Hash) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[node], nil
}

const registryABI = `[{"inputs":[{"internalType":"bytes32","name":"node","type":"bytes32"}],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// RPCRegistry reads owners from an ENS registry contract on L1.
type RPCRegistry struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewRPCRegistry binds the registry deployed at address.
func NewRPCRegistry(caller ethereum.ContractCaller, address common.Address) (*RPCRegistry, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller required")
	}
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &RPCRegistry{caller: caller, address: address, abi: parsed}, nil
}

// Owner implements Registry.
func (r *RPCRegistry) Owner(ctx context.Context, node common.Hash) (common.Address, error) {
	input, err := r.abi.Pack("owner", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack owner call: %w", err)
	}
	to := r.address
	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call registry owner: %w", err)
	}
	values, err := r.abi.Unpack("owner", output)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack owner: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected owner output arity %d", len(values))
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected owner output type %T", values[0])
	}
	return owner, nil
}
