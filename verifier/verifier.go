// Package verifier checks gateway proof bundles against published output
// roots.
//
// Verification walks two nested Merkle proofs: the record store account in
// the L2 state trie, then each record slot in the account's storage trie.
// Every storage key is recomputed from the requested record; keys carried by
// the bundle are only compared, never trusted.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"l2resolver/ccip"
	"l2resolver/l2"
	"l2resolver/layout"
	"l2resolver/oracle"
	"l2resolver/storage/trie"
)

var (
	// ErrUnknownCheckpoint means the oracle has no output at the bundle's index.
	ErrUnknownCheckpoint = errors.New("verifier: unknown checkpoint")
	// ErrMalformedCheckpoint means the output root components do not hash to
	// the published output root.
	ErrMalformedCheckpoint = errors.New("verifier: malformed checkpoint")
	// ErrMalformedProof means a Merkle proof does not walk to a value.
	ErrMalformedProof = errors.New("verifier: malformed proof")
	// ErrAccountNotFound means the state proof shows the record store account
	// does not exist.
	ErrAccountNotFound = errors.New("verifier: account not found")
	// ErrProofMismatch means the proof is sound but does not prove the claimed
	// record.
	ErrProofMismatch = errors.New("verifier: proof mismatch")
)

// Retryable reports whether err may clear up by waiting for the oracle.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnknownCheckpoint) || errors.Is(err, ErrMalformedCheckpoint)
}

// Request names the record a bundle must prove.
type Request struct {
	Context common.Address
	Node    common.Hash
	Field   layout.Field
}

// Verified is the outcome of a successful check.
type Verified struct {
	Value      []byte
	Version    uint64
	Checkpoint oracle.Checkpoint
}

// Verifier checks bundles for records of the store deployed at Store.
type Verifier struct {
	oracle  oracle.Reader
	store   common.Address
	formats *oracle.FormatRegistry
}

// New returns a verifier trusting checkpoints from reader.
func New(reader oracle.Reader, store common.Address, formats *oracle.FormatRegistry) *Verifier {
	if formats == nil {
		formats = oracle.DefaultFormats
	}
	return &Verifier{oracle: reader, store: store, formats: formats}
}

// Verify checks that bundle proves claimed is the current value of req.
// Absent records verify with an empty claimed value.
func (v *Verifier) Verify(ctx context.Context, req Request, claimed []byte, bundle *ccip.ProofBundle) (*Verified, error) {
	if bundle == nil {
		return nil, fmt.Errorf("%w: no bundle", ErrMalformedProof)
	}
	cp, err := v.oracle.CheckpointByIndex(ctx, bundle.OutputIndex)
	if errors.Is(err, oracle.ErrNotFound) {
		return nil, fmt.Errorf("%w: output %d", ErrUnknownCheckpoint, bundle.OutputIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("read output %d: %w", bundle.OutputIndex, err)
	}
	outputRoot, err := v.formats.OutputRoot(bundle.OutputRootProof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCheckpoint, err)
	}
	if outputRoot != cp.OutputRoot {
		return nil, fmt.Errorf("%w: output %d commits to %s, proof hashes to %s", ErrMalformedCheckpoint, cp.Index, cp.OutputRoot.Hex(), outputRoot.Hex())
	}
	storageRoot, err := v.storageRoot(bundle.OutputRootProof.StateRoot, bundle.AccountProof)
	if err != nil {
		return nil, err
	}
	slots := &slotWalker{root: storageRoot, proofs: bundle.StorageProofs}

	versionWord, err := slots.next(layout.VersionSlot(req.Context, req.Node))
	if err != nil {
		return nil, err
	}
	version, ok := layout.DecodeVersion(versionWord)
	if !ok {
		return nil, fmt.Errorf("%w: record version %s out of range", ErrProofMismatch, versionWord.Hex())
	}
	head := req.Field.Slot(version, req.Context, req.Node)
	headWord, err := slots.next(head)
	if err != nil {
		return nil, err
	}
	decoded, err := layout.DecodeHead(headWord)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}
	data := make([]common.Hash, decoded.DataSlots())
	for i := range data {
		if data[i], err = slots.next(layout.DataSlot(head, uint64(i))); err != nil {
			return nil, err
		}
	}
	if err := slots.done(); err != nil {
		return nil, err
	}
	value, err := layout.DecodeBytes(headWord, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofMismatch, err)
	}
	if !bytes.Equal(value, claimed) {
		return nil, fmt.Errorf("%w: proven %s value differs from claimed value", ErrProofMismatch, req.Field.Kind())
	}
	return &Verified{Value: value, Version: version, Checkpoint: cp}, nil
}

// storageRoot walks the account proof and returns the record store's storage
// root.
func (v *Verifier) storageRoot(stateRoot common.Hash, proof [][]byte) (common.Hash, error) {
	enc, err := gethtrie.VerifyProof(stateRoot, crypto.Keccak256(v.store.Bytes()), trie.NewProofSet(proof))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: account proof: %v", ErrMalformedProof, err)
	}
	if len(enc) == 0 {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrAccountNotFound, v.store.Hex())
	}
	var account types.StateAccount
	if err := rlp.DecodeBytes(enc, &account); err != nil {
		return common.Hash{}, fmt.Errorf("%w: account encoding: %v", ErrMalformedProof, err)
	}
	return account.Root, nil
}

// slotWalker consumes the bundle's storage proofs in order.
type slotWalker struct {
	root   common.Hash
	proofs []ccip.StorageProof
	pos    int
}

// next verifies the proof of the expected slot and returns its word.
func (w *slotWalker) next(expected common.Hash) (common.Hash, error) {
	if w.pos >= len(w.proofs) {
		return common.Hash{}, fmt.Errorf("%w: missing proof for slot %s", ErrProofMismatch, expected.Hex())
	}
	sp := w.proofs[w.pos]
	w.pos++
	if sp.Key != expected {
		return common.Hash{}, fmt.Errorf("%w: proof %d is for slot %s, expected %s", ErrProofMismatch, w.pos-1, sp.Key.Hex(), expected.Hex())
	}
	if w.root == types.EmptyRootHash && len(sp.Proof) == 0 {
		return common.Hash{}, nil
	}
	raw, err := gethtrie.VerifyProof(w.root, crypto.Keccak256(expected.Bytes()), trie.NewProofSet(sp.Proof))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: storage proof for %s: %v", ErrMalformedProof, expected.Hex(), err)
	}
	word, err := l2.DecodeStorageValue(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return word, nil
}

// done fails if the bundle carries proofs that were not consumed.
func (w *slotWalker) done() error {
	if w.pos != len(w.proofs) {
		return fmt.Errorf("%w: %d unexpected storage proofs", ErrProofMismatch, len(w.proofs)-w.pos)
	}
	return nil
}
