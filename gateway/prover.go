package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"l2resolver/ccip"
	"l2resolver/l2"
	"l2resolver/layout"
	"l2resolver/oracle"
)

// Prover assembles proof bundles for record store slots against a published
// checkpoint.
type Prover struct {
	state  l2.StateReader
	store  common.Address
	format oracle.OutputFormat
}

// NewProver returns a prover reading the record store deployed at store.
func NewProver(state l2.StateReader, store common.Address, format oracle.OutputFormat) *Prover {
	if format == nil {
		format = oracle.OutputV0{}
	}
	return &Prover{state: state, store: store, format: format}
}

// Prove reads the current value of field for (context, node) at the block
// committed by cp and proves it. Unset records yield an empty value with a
// bundle proving the absence.
func (p *Prover) Prove(ctx context.Context, cp oracle.Checkpoint, context common.Address, node common.Hash, field layout.Field) ([]byte, *ccip.ProofBundle, error) {
	number := cp.L2BlockNumber
	outputProof, err := oracle.BuildOutputRootProof(ctx, p.state, p.format, number)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: output root proof at %d: %v", ErrUpstream, number, err)
	}
	if root := p.format.OutputRoot(outputProof); root != cp.OutputRoot {
		return nil, nil, fmt.Errorf("%w: l2 block %d hashes to %s, output %d commits to %s", ErrUpstream, number, root.Hex(), cp.Index, cp.OutputRoot.Hex())
	}

	versionWord, err := p.state.StorageAt(ctx, p.store, layout.VersionSlot(context, node), number)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: record version: %v", ErrUpstream, err)
	}
	version, ok := layout.DecodeVersion(versionWord)
	if !ok {
		return nil, nil, fmt.Errorf("record version %s out of range", versionWord.Hex())
	}
	headWord, err := p.state.StorageAt(ctx, p.store, field.Slot(version, context, node), number)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s head: %v", ErrUpstream, field.Kind(), err)
	}
	slots, err := layout.FieldSlots(context, node, version, field, headWord)
	if err != nil {
		return nil, nil, fmt.Errorf("%s value: %w", field.Kind(), err)
	}
	proof, err := p.state.GetProof(ctx, p.store, slots, number)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: storage proof: %v", ErrUpstream, err)
	}
	if len(proof.StorageProof) != len(slots) {
		return nil, nil, fmt.Errorf("%w: asked for %d storage proofs, got %d", ErrUpstream, len(slots), len(proof.StorageProof))
	}

	bundle := &ccip.ProofBundle{
		OutputIndex:     cp.Index,
		OutputRootProof: outputProof,
		AccountProof:    proof.AccountProof,
		StorageProofs:   make([]ccip.StorageProof, len(slots)),
	}
	data := make([]common.Hash, 0, len(slots))
	for i, sp := range proof.StorageProof {
		if sp.Key != slots[i] {
			return nil, nil, fmt.Errorf("%w: storage proof %d is for %s, asked for %s", ErrUpstream, i, sp.Key.Hex(), slots[i].Hex())
		}
		bundle.StorageProofs[i] = ccip.StorageProof{Key: sp.Key, Proof: sp.Proof}
		switch i {
		case 0:
			if sp.Value != versionWord {
				return nil, nil, fmt.Errorf("%w: record version changed under block %d", ErrUpstream, number)
			}
		case 1:
			if sp.Value != headWord {
				return nil, nil, fmt.Errorf("%w: %s head changed under block %d", ErrUpstream, field.Kind(), number)
			}
		default:
			data = append(data, sp.Value)
		}
	}
	value, err := layout.DecodeBytes(headWord, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s value: %w", field.Kind(), err)
	}
	return value, bundle, nil
}
