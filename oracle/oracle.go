// Package oracle reads and produces the output-root checkpoints that commit
// to L2 state on L1.
package oracle

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound is returned when no checkpoint satisfies a lookup.
var ErrNotFound = errors.New("oracle: checkpoint not found")

// Checkpoint is a single published output root.
type Checkpoint struct {
	Index         uint64
	OutputRoot    common.Hash
	L2BlockNumber uint64
	Timestamp     uint64
}

// Reader is the read side of an output oracle. Checkpoint block numbers
// strictly increase with their index.
type Reader interface {
	CheckpointByIndex(ctx context.Context, index uint64) (Checkpoint, error)
	LatestCheckpointAtOrBefore(ctx context.Context, l2Block uint64) (Checkpoint, error)
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
}
