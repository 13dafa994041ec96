package oracle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"l2resolver/l2"
	"l2resolver/observability"
)

// Source is the L2 view the proposer commits to.
type Source interface {
	l2.StateReader
	l2.HeadReader
}

// Proposer periodically publishes an output root for the newest L2 block that
// is at least Lag blocks old.
type Proposer struct {
	source   Source
	ledger   *Ledger
	format   OutputFormat
	interval time.Duration
	lag      uint64
	logger   *log.Logger
	now      func() time.Time
	once     sync.Once
}

// ProposerOption configures a Proposer.
type ProposerOption func(*Proposer)

// WithProposerLogger installs a custom logger.
func WithProposerLogger(l *log.Logger) ProposerOption {
	return func(p *Proposer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLag keeps the proposer the given number of blocks behind the head.
func WithLag(lag uint64) ProposerOption {
	return func(p *Proposer) {
		p.lag = lag
	}
}

// WithFormat selects the output root format to publish.
func WithFormat(format OutputFormat) ProposerOption {
	return func(p *Proposer) {
		if format != nil {
			p.format = format
		}
	}
}

// WithProposerClock overrides the checkpoint timestamp source.
func WithProposerClock(now func() time.Time) ProposerOption {
	return func(p *Proposer) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProposer constructs a proposer publishing to ledger.
func NewProposer(source Source, ledger *Ledger, interval time.Duration, opts ...ProposerOption) (*Proposer, error) {
	if source == nil {
		return nil, fmt.Errorf("l2 source required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	p := &Proposer{
		source:   source,
		ledger:   ledger,
		format:   OutputV0{},
		interval: interval,
		logger:   log.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run blocks, proposing on every interval until the context is cancelled.
func (p *Proposer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.once.Do(func() {
		p.logger.Printf("proposer: started with interval %s and lag %d", p.interval, p.lag)
	})
	for {
		if _, _, err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.Proposer().RecordFailure()
			p.logger.Printf("proposer: tick error: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick proposes at most one output root. ok is false when there is no new
// block to commit to.
func (p *Proposer) Tick(ctx context.Context) (cp Checkpoint, ok bool, err error) {
	head, err := p.source.BlockNumber(ctx)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("l2 head: %w", err)
	}
	if head < p.lag {
		return Checkpoint{}, false, nil
	}
	target := head - p.lag
	if latest, err := p.ledger.LatestCheckpoint(ctx); err == nil && latest.L2BlockNumber >= target {
		return Checkpoint{}, false, nil
	}
	proof, err := BuildOutputRootProof(ctx, p.source, p.format, target)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("build output root proof for %d: %w", target, err)
	}
	cp, err = p.ledger.Append(p.format.OutputRoot(proof), target, uint64(p.now().Unix()))
	if err != nil {
		return Checkpoint{}, false, err
	}
	observability.Proposer().RecordProposal(cp.L2BlockNumber)
	p.logger.Printf("proposer: output %d committed block %d root %s", cp.Index, cp.L2BlockNumber, cp.OutputRoot.Hex())
	return cp, true, nil
}
