package ccip

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"l2resolver/ens"
	"l2resolver/layout"
)

// Query is a decoded record lookup. Name is the DNS wire encoded name and is
// empty when the caller sent a bare record getter call.
type Query struct {
	Name  []byte
	Node  common.Hash
	Field layout.Field
}

// Domain returns the dotted name, or "" when the query carries none.
func (q Query) Domain() string {
	if len(q.Name) == 0 {
		return ""
	}
	domain, err := ens.DNSDecode(q.Name)
	if err != nil {
		return ""
	}
	return domain
}

// EncodeFieldCall builds the record getter calldata for field on node.
func EncodeFieldCall(node common.Hash, field layout.Field) ([]byte, error) {
	switch f := field.(type) {
	case layout.Text:
		return resolverABI.Pack(methodText, node, f.Key)
	case layout.Addr:
		if f.CoinType == layout.CoinTypeETH {
			return resolverABI.Pack(methodAddr, node)
		}
		return resolverABI.Pack(methodAddrCoin, node, new(big.Int).SetUint64(f.CoinType))
	case layout.Contenthash:
		return resolverABI.Pack(methodContenthash, node)
	default:
		return nil, fmt.Errorf("%w: unsupported field %T", ErrMalformed, field)
	}
}

// DecodeFieldCall parses a record getter call.
func DecodeFieldCall(data []byte) (common.Hash, layout.Field, error) {
	if len(data) < 4 {
		return common.Hash{}, nil, fmt.Errorf("%w: calldata of %d bytes", ErrMalformed, len(data))
	}
	method, err := resolverABI.MethodById(data[:4])
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: %s arguments: %v", ErrMalformed, method.Name, err)
	}
	if len(args) == 0 {
		return common.Hash{}, nil, fmt.Errorf("%w: %s is not a record getter", ErrMalformed, method.Name)
	}
	node, ok := args[0].([32]byte)
	if !ok {
		return common.Hash{}, nil, fmt.Errorf("%w: %s is not a record getter", ErrMalformed, method.Name)
	}
	switch method.Name {
	case methodText:
		return node, layout.Text{Key: args[1].(string)}, nil
	case methodAddr:
		return node, layout.Addr{CoinType: layout.CoinTypeETH}, nil
	case methodAddrCoin:
		coinType := args[1].(*big.Int)
		if !coinType.IsUint64() {
			return common.Hash{}, nil, fmt.Errorf("%w: coin type %s out of range", ErrMalformed, coinType)
		}
		return node, layout.Addr{CoinType: coinType.Uint64()}, nil
	case methodContenthash:
		return node, layout.Contenthash{}, nil
	default:
		return common.Hash{}, nil, fmt.Errorf("%w: %s is not a record getter", ErrMalformed, method.Name)
	}
}

// EncodeResolveCall wraps a record getter call in resolve(bytes,bytes).
func EncodeResolveCall(name []byte, inner []byte) ([]byte, error) {
	return resolverABI.Pack(methodResolve, name, inner)
}

// EncodeQuery builds resolve(name, getter) calldata for a record lookup.
func EncodeQuery(q Query) ([]byte, error) {
	inner, err := EncodeFieldCall(q.Node, q.Field)
	if err != nil {
		return nil, err
	}
	if len(q.Name) == 0 {
		return inner, nil
	}
	return EncodeResolveCall(q.Name, inner)
}

// DecodeQuery parses either resolve(bytes,bytes) calldata or a bare record
// getter call. For resolve calls the getter's node must be the namehash of
// the wrapped name.
func DecodeQuery(data []byte) (Query, error) {
	if len(data) < 4 {
		return Query{}, fmt.Errorf("%w: calldata of %d bytes", ErrMalformed, len(data))
	}
	resolve := resolverABI.Methods[methodResolve]
	if !bytes.Equal(data[:4], resolve.ID) {
		node, field, err := DecodeFieldCall(data)
		if err != nil {
			return Query{}, err
		}
		return Query{Node: node, Field: field}, nil
	}
	args, err := resolve.Inputs.Unpack(data[4:])
	if err != nil {
		return Query{}, fmt.Errorf("%w: resolve arguments: %v", ErrMalformed, err)
	}
	name := args[0].([]byte)
	_, node, err := ens.NodeFromDNS(name)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	inner, field, err := DecodeFieldCall(args[1].([]byte))
	if err != nil {
		return Query{}, err
	}
	if inner != node {
		return Query{}, fmt.Errorf("%w: getter node %s does not match name node %s", ErrMalformed, common.Hash(inner).Hex(), node.Hex())
	}
	return Query{Name: name, Node: node, Field: field}, nil
}

// EncodeFieldResult ABI encodes value as the return data of field's getter.
// The default coin type is returned as an address, which is the zero address
// unless value holds exactly 20 bytes.
func EncodeFieldResult(field layout.Field, value []byte) ([]byte, error) {
	payload := append([]byte{}, value...)
	switch f := field.(type) {
	case layout.Text:
		return resolverABI.Methods[methodText].Outputs.Pack(string(payload))
	case layout.Addr:
		if f.CoinType == layout.CoinTypeETH {
			var addr common.Address
			if len(payload) == common.AddressLength {
				addr = common.BytesToAddress(payload)
			}
			return resolverABI.Methods[methodAddr].Outputs.Pack(addr)
		}
		return resolverABI.Methods[methodAddrCoin].Outputs.Pack(payload)
	case layout.Contenthash:
		return resolverABI.Methods[methodContenthash].Outputs.Pack(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported field %T", ErrMalformed, field)
	}
}

// EncodeResolveResult wraps getter return data as the output of
// resolve(bytes,bytes).
func EncodeResolveResult(inner []byte) ([]byte, error) {
	return resolverABI.Methods[methodResolve].Outputs.Pack(append([]byte{}, inner...))
}

// DecodeResolveResult unwraps the output of resolve(bytes,bytes).
func DecodeResolveResult(output []byte) ([]byte, error) {
	values, err := resolverABI.Methods[methodResolve].Outputs.Unpack(output)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve output: %v", ErrMalformed, err)
	}
	return values[0].([]byte), nil
}
