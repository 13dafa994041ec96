// Package gateway answers offchain record lookups with values proven against
// the newest published output root.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"l2resolver/ccip"
	"l2resolver/ens"
	"l2resolver/observability"
	"l2resolver/oracle"
)

var (
	// ErrBadQuery is returned for calldata the gateway cannot interpret.
	ErrBadQuery = errors.New("gateway: bad query")
	// ErrNotYetProvable means no published output covers the record store
	// yet. Clients should retry later.
	ErrNotYetProvable = errors.New("gateway: not yet provable")
	// ErrUpstream wraps failures reading L1 or L2 state.
	ErrUpstream = errors.New("gateway: upstream unavailable")
)

// Retryable reports whether a lookup that failed with err may succeed later.
func Retryable(err error) bool {
	return errors.Is(err, ErrNotYetProvable) || errors.Is(err, ErrUpstream)
}

// Answer is a proven lookup result.
type Answer struct {
	Query      ccip.Query
	Context    common.Address
	Checkpoint oracle.Checkpoint
	Value      []byte
	Bundle     *ccip.ProofBundle
}

// Service resolves lookups. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	registry ens.Registry
	oracle   oracle.Reader
	prover   *Prover
	logger   *slog.Logger
	metrics  *observability.GatewayMetrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics overrides the metrics sink. A nil sink disables metrics.
func WithMetrics(metrics *observability.GatewayMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// NewService wires a lookup service. registry supplies the context owning a
// name and reader the published checkpoints.
func NewService(registry ens.Registry, reader oracle.Reader, prover *Prover, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if reader == nil {
		return nil, fmt.Errorf("oracle reader required")
	}
	if prover == nil {
		return nil, fmt.Errorf("prover required")
	}
	s := &Service{
		registry: registry,
		oracle:   reader,
		prover:   prover,
		logger:   slog.Default(),
		metrics:  observability.Gateway(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup decodes data as sent to sender and proves the requested record at
// the block of the newest published checkpoint. The L2 head is never used.
func (s *Service) Lookup(ctx context.Context, sender common.Address, data []byte) (answer *Answer, err error) {
	start := s.now()
	kind := "unknown"
	defer func() {
		s.metrics.Observe(kind, outcome(err), s.now().Sub(start))
	}()

	query, err := ccip.DecodeQuery(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
	}
	kind = query.Field.Kind().String()

	owner, err := s.registry.Owner(ctx, query.Node)
	if err != nil {
		return nil, fmt.Errorf("%w: owner of %s: %v", ErrUpstream, query.Node.Hex(), err)
	}
	cp, err := s.oracle.LatestCheckpoint(ctx)
	if errors.Is(err, oracle.ErrNotFound) {
		return nil, fmt.Errorf("%w: no output published", ErrNotYetProvable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest output: %v", ErrUpstream, err)
	}
	value, bundle, err := s.prover.Prove(ctx, cp, owner, query.Node, query.Field)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBundle(cp.L2BlockNumber, len(bundle.StorageProofs))
	s.logger.Debug("lookup proven",
		"sender", sender.Hex(),
		"name", query.Domain(),
		"node", query.Node.Hex(),
		"kind", kind,
		"context", owner.Hex(),
		"output", cp.Index,
		"l2_block", cp.L2BlockNumber)
	return &Answer{Query: query, Context: owner, Checkpoint: cp, Value: value, Bundle: bundle}, nil
}

// Respond runs Lookup and encodes the answer as abi.encode(value, proof).
func (s *Service) Respond(ctx context.Context, sender common.Address, data []byte) ([]byte, error) {
	answer, err := s.Lookup(ctx, sender, data)
	if err != nil {
		return nil, err
	}
	return ccip.EncodeResponse(answer.Value, answer.Bundle)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadQuery):
		return "bad_query"
	case errors.Is(err, ErrNotYetProvable):
		return "not_yet_provable"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
