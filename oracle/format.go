package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"l2resolver/l2"
)

// ErrUnknownFormat is returned for output roots with an unregistered version.
var ErrUnknownFormat = errors.New("oracle: unknown output root format")

// OutputRootProof holds the components an output root commits to.
type OutputRootProof struct {
	Version                  common.Hash
	StateRoot                common.Hash
	MessagePasserStorageRoot common.Hash
	LatestBlockhash          common.Hash
}

// OutputFormat computes an output root from its components.
type OutputFormat interface {
	Version() common.Hash
	OutputRoot(proof OutputRootProof) common.Hash
}

// OutputV0 is the Bedrock output root:
// keccak256(version ++ stateRoot ++ messagePasserStorageRoot ++ blockHash).
type OutputV0 struct{}

// Version implements OutputFormat.
func (OutputV0) Version() common.Hash { return common.Hash{} }

// OutputRoot implements OutputFormat.
func (OutputV0) OutputRoot(p OutputRootProof) common.Hash {
	return crypto.Keccak256Hash(p.Version[:], p.StateRoot[:], p.MessagePasserStorageRoot[:], p.LatestBlockhash[:])
}

// FormatRegistry maps output root versions to their formats.
type FormatRegistry struct {
	mu      sync.RWMutex
	formats map[common.Hash]OutputFormat
}

// NewFormatRegistry returns a registry holding the given formats.
func NewFormatRegistry(formats ...OutputFormat) *FormatRegistry {
	r := &FormatRegistry{formats: make(map[common.Hash]OutputFormat, len(formats))}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// DefaultFormats holds every output root format this package understands.
var DefaultFormats = NewFormatRegistry(OutputV0{})

// Register adds or replaces the format for its version.
func (r *FormatRegistry) Register(format OutputFormat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[format.Version()] = format
}

// Lookup returns the format registered for version.
func (r *FormatRegistry) Lookup(version common.Hash) (OutputFormat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	format, ok := r.formats[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, version.Hex())
	}
	return format, nil
}

// OutputRoot hashes proof with the format named by its version.
func (r *FormatRegistry) OutputRoot(proof OutputRootProof) (common.Hash, error) {
	format, err := r.Lookup(proof.Version)
	if err != nil {
		return common.Hash{}, err
	}
	return format.OutputRoot(proof), nil
}

// BuildOutputRootProof collects the output root components of an L2 block.
func BuildOutputRootProof(ctx context.Context, reader l2.StateReader, format OutputFormat, number uint64) (OutputRootProof, error) {
	header, err := reader.HeaderByNumber(ctx, number)
	if err != nil {
		return OutputRootProof{}, err
	}
	passer, err := reader.GetProof(ctx, l2.MessagePasserAddress, nil, number)
	if err != nil {
		return OutputRootProof{}, fmt.Errorf("message passer proof: %w", err)
	}
	return OutputRootProof{
		Version:                  format.Version(),
		StateRoot:                header.Root,
		MessagePasserStorageRoot: passer.StorageHash,
		LatestBlockhash:          header.Hash(),
	}, nil
}
