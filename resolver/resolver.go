// Package resolver is the client facing entry point for L2 records. Reads
// never answer directly: they return an OffchainLookup directive, and the
// gateway's answer is accepted only through ResolveWithProof once its proof
// checks out against a published output root.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"l2resolver/ccip"
	"l2resolver/ens"
	"l2resolver/layout"
	"l2resolver/observability"
	"l2resolver/oracle"
	"l2resolver/verifier"
)

// ErrStaleEcho is returned when the echoed query no longer matches the name's
// owner or was not issued by this resolver.
var ErrStaleEcho = errors.New("resolver: stale or foreign extra data")

// Resolver issues lookups for records of one L2 record store and verifies the
// answers.
type Resolver struct {
	address  common.Address
	urls     []string
	registry ens.Registry
	verifier *verifier.Verifier
	metrics  *observability.ResolverMetrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics overrides the metrics sink. A nil sink disables metrics.
func WithMetrics(metrics *observability.ResolverMetrics) Option {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// New returns a resolver deployed at address that sends clients to the
// gateway URL templates in urls.
func New(address common.Address, urls []string, registry ens.Registry, v *verifier.Verifier, opts ...Option) (*Resolver, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one gateway url required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if v == nil {
		return nil, fmt.Errorf("verifier required")
	}
	r := &Resolver{
		address:  address,
		urls:     append([]string(nil), urls...),
		registry: registry,
		verifier: v,
		metrics:  observability.Resolver(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Address returns the address lookups are issued from.
func (r *Resolver) Address() common.Address { return r.address }

// URLs returns the gateway URL templates.
func (r *Resolver) URLs() []string { return append([]string(nil), r.urls...) }

// Resolve implements the ENSIP-10 entry point. data must be a record getter
// call for the node of the DNS encoded name.
func (r *Resolver) Resolve(ctx context.Context, name, data []byte) (*ccip.OffchainLookup, error) {
	inner, err := ccip.EncodeResolveCall(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ccip.ErrMalformed, err)
	}
	query, err := ccip.DecodeQuery(inner)
	if err != nil {
		return nil, err
	}
	return r.Lookup(ctx, query)
}

// Call dispatches raw resolver calldata, either resolve(bytes,bytes) or a
// bare record getter.
func (r *Resolver) Call(ctx context.Context, data []byte) (*ccip.OffchainLookup, error) {
	query, err := ccip.DecodeQuery(data)
	if err != nil {
		return nil, err
	}
	return r.Lookup(ctx, query)
}

// Text starts a lookup of a text record.
func (r *Resolver) Text(ctx context.Context, node common.Hash, key string) (*ccip.OffchainLookup, error) {
	return r.Lookup(ctx, ccip.Query{Node: node, Field: layout.Text{Key: key}})
}

// Addr starts a lookup of the default chain address.
func (r *Resolver) Addr(ctx context.Context, node common.Hash) (*ccip.OffchainLookup, error) {
	return r.Lookup(ctx, ccip.Query{Node: node, Field: layout.Addr{CoinType: layout.CoinTypeETH}})
}

// AddrCoin starts a lookup of the address for coinType.
func (r *Resolver) AddrCoin(ctx context.Context, node common.Hash, coinType uint64) (*ccip.OffchainLookup, error) {
	return r.Lookup(ctx, ccip.Query{Node: node, Field: layout.Addr{CoinType: coinType}})
}

// Contenthash starts a lookup of the content hash.
func (r *Resolver) Contenthash(ctx context.Context, node common.Hash) (*ccip.OffchainLookup, error) {
	return r.Lookup(ctx, ccip.Query{Node: node, Field: layout.Contenthash{}})
}

// Lookup builds the OffchainLookup directive for query. The context owning
// the name is captured in the echoed extra data.
func (r *Resolver) Lookup(ctx context.Context, query ccip.Query) (*ccip.OffchainLookup, error) {
	owner, err := r.registry.Owner(ctx, query.Node)
	if err != nil {
		return nil, fmt.Errorf("owner of %s: %w", query.Node.Hex(), err)
	}
	callData, err := ccip.EncodeQuery(query)
	if err != nil {
		return nil, err
	}
	extra, err := ccip.EncodeEcho(ccip.NewEcho(r.address, owner, query))
	if err != nil {
		return nil, fmt.Errorf("encode extra data: %w", err)
	}
	return &ccip.OffchainLookup{
		Sender:           r.address,
		URLs:             r.URLs(),
		CallData:         callData,
		CallbackFunction: ccip.ResolveWithProofSelector(),
		ExtraData:        extra,
	}, nil
}

// Result is a verified record value.
type Result struct {
	Query      ccip.Query
	Context    common.Address
	Value      []byte
	Version    uint64
	Checkpoint oracle.Checkpoint
	output     []byte
}

// Output returns what the original call returns: the getter's ABI return
// data, wrapped as resolve(bytes,bytes) output when the lookup came through
// Resolve.
func (res *Result) Output() []byte { return common.CopyBytes(res.output) }

// Text returns the value as a text record.
func (res *Result) Text() string { return string(res.Value) }

// Address returns the value as an address, or the zero address when the value
// is not 20 bytes long.
func (res *Result) Address() common.Address {
	if len(res.Value) != common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(res.Value)
}

// ResolveWithProof is the OffchainLookup callback. The record is taken from
// extraData, never from the response; the response only supplies the claimed
// value and its proof. Any verification failure is returned as is.
func (r *Resolver) ResolveWithProof(ctx context.Context, response, extraData []byte) (res *Result, err error) {
	defer func() {
		r.metrics.RecordVerification(err)
	}()

	echo, err := ccip.DecodeEcho(extraData)
	if err != nil {
		return nil, err
	}
	if echo.Sender != r.address {
		return nil, fmt.Errorf("%w: issued by %s", ErrStaleEcho, echo.Sender.Hex())
	}
	query, err := echo.Query()
	if err != nil {
		return nil, err
	}
	if len(query.Name) > 0 {
		_, node, err := ens.NodeFromDNS(query.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStaleEcho, err)
		}
		if node != query.Node {
			return nil, fmt.Errorf("%w: name does not hash to %s", ErrStaleEcho, query.Node.Hex())
		}
	}
	owner, err := r.registry.Owner(ctx, query.Node)
	if err != nil {
		return nil, fmt.Errorf("owner of %s: %w", query.Node.Hex(), err)
	}
	if owner != echo.Context {
		return nil, fmt.Errorf("%w: %s now owned by %s", ErrStaleEcho, query.Node.Hex(), owner.Hex())
	}

	claimed, bundle, err := ccip.DecodeResponse(response)
	if err != nil {
		return nil, err
	}
	verified, err := r.verifier.Verify(ctx, verifier.Request{
		Context: echo.Context,
		Node:    query.Node,
		Field:   query.Field,
	}, claimed, bundle)
	if err != nil {
		return nil, err
	}

	output, err := ccip.EncodeFieldResult(query.Field, verified.Value)
	if err != nil {
		return nil, err
	}
	if len(query.Name) > 0 {
		if output, err = ccip.EncodeResolveResult(output); err != nil {
			return nil, err
		}
	}
	return &Result{
		Query:      query,
		Context:    echo.Context,
		Value:      verified.Value,
		Version:    verified.Version,
		Checkpoint: verified.Checkpoint,
		output:     output,
	}, nil
}
