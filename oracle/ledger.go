package oracle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-memory, append-only checkpoint log.
type Ledger struct {
	mu          sync.RWMutex
	checkpoints []Checkpoint
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append publishes a new output root for l2Block. Block numbers must strictly
// increase.
func (l *Ledger) Append(outputRoot common.Hash, l2Block, timestamp uint64) (Checkpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.checkpoints); n > 0 && l.checkpoints[n-1].L2BlockNumber >= l2Block {
		return Checkpoint{}, fmt.Errorf("oracle: block %d does not follow checkpointed block %d", l2Block, l.checkpoints[n-1].L2BlockNumber)
	}
	cp := Checkpoint{
		Index:         uint64(len(l.checkpoints)),
		OutputRoot:    outputRoot,
		L2BlockNumber: l2Block,
		Timestamp:     timestamp,
	}
	l.checkpoints = append(l.checkpoints, cp)
	return cp, nil
}

// Len returns the number of published checkpoints.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.checkpoints)
}

// CheckpointByIndex implements Reader.
func (l *Ledger) CheckpointByIndex(_ context.Context, index uint64) (Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.checkpoints)) {
		return Checkpoint{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return l.checkpoints[index], nil
}

// LatestCheckpointAtOrBefore implements Reader.
func (l *Ledger) LatestCheckpointAtOrBefore(_ context.Context, l2Block uint64) (Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := sort.Search(len(l.checkpoints), func(i int) bool {
		return l.checkpoints[i].L2BlockNumber > l2Block
	})
	if i == 0 {
		return Checkpoint{}, fmt.Errorf("%w: at or before block %d", ErrNotFound, l2Block)
	}
	return l.checkpoints[i-1], nil
}

// LatestCheckpoint implements Reader.
func (l *Ledger) LatestCheckpoint(_ context.Context) (Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.checkpoints) == 0 {
		return Checkpoint{}, fmt.Errorf("%w: ledger empty", ErrNotFound)
	}
	return l.checkpoints[len(l.checkpoints)-1], nil
}
