// Package ccip implements the wire formats of the offchain lookup round trip:
// resolver calldata, the OffchainLookup directive, the echoed query context,
// and the gateway's (value, proof) response.
package ccip

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMalformed is returned for calldata or responses that do not decode.
var ErrMalformed = errors.New("ccip: malformed payload")

// ResolverABI declares the resolver entry points, the record getters they
// dispatch to, and the OffchainLookup error.
const ResolverABI = `[
{"type":"function","name":"resolve","stateMutability":"view","inputs":[{"name":"name","type":"bytes"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"function","name":"resolveWithProof","stateMutability":"view","inputs":[{"name":"response","type":"bytes"},{"name":"extraData","type":"bytes"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"function","name":"text","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"},{"name":"key","type":"string"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"addr","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"addr","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"},{"name":"coinType","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"function","name":"contenthash","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"bytes"}]},
{"type":"error","name":"OffchainLookup","inputs":[{"name":"sender","type":"address"},{"name":"urls","type":"string[]"},{"name":"callData","type":"bytes"},{"name":"callbackFunction","type":"bytes4"},{"name":"extraData","type":"bytes"}]}
]`

// Method names as assigned by the ABI parser. The second addr overload is
// renamed addr0.
const (
	methodResolve          = "resolve"
	methodResolveWithProof = "resolveWithProof"
	methodText             = "text"
	methodAddr             = "addr"
	methodAddrCoin         = "addr0"
	methodContenthash      = "contenthash"
	errorOffchainLookup    = "OffchainLookup"
)

var resolverABI = mustParse(ResolverABI)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Selector returns the 4-byte selector of a resolver method.
func Selector(method string) [4]byte {
	var sel [4]byte
	copy(sel[:], resolverABI.Methods[method].ID)
	return sel
}

// ResolveWithProofSelector is the callback named by every OffchainLookup.
func ResolveWithProofSelector() [4]byte {
	return Selector(methodResolveWithProof)
}
