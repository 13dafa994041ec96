package ccip

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"l2resolver/oracle"
)

// StorageProof proves one storage slot of the record store account.
type StorageProof struct {
	Key   common.Hash
	Proof [][]byte
}

// ProofBundle carries everything needed to check a record value against a
// published output root. StorageProofs are ordered: the record version slot,
// the value's head slot, then each data slot of a long value.
type ProofBundle struct {
	OutputIndex     uint64
	OutputRootProof oracle.OutputRootProof
	AccountProof    [][]byte
	StorageProofs   []StorageProof
}

// Slots returns the storage keys the bundle claims to prove.
func (b *ProofBundle) Slots() []common.Hash {
	out := make([]common.Hash, len(b.StorageProofs))
	for i, sp := range b.StorageProofs {
		out[i] = sp.Key
	}
	return out
}

// EncodeBundle serialises a bundle with RLP.
func EncodeBundle(bundle *ProofBundle) ([]byte, error) {
	return rlp.EncodeToBytes(bundle)
}

// DecodeBundle parses an RLP encoded bundle.
func DecodeBundle(data []byte) (*ProofBundle, error) {
	bundle := new(ProofBundle)
	if err := rlp.DecodeBytes(data, bundle); err != nil {
		return nil, fmt.Errorf("%w: proof bundle: %v", ErrMalformed, err)
	}
	return bundle, nil
}

var responseArgs = func() abi.Arguments {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "value", Type: bytesTy}, {Name: "proof", Type: bytesTy}}
}()

// EncodeResponse packs the gateway answer as abi.encode(bytes value, bytes proof).
func EncodeResponse(value []byte, bundle *ProofBundle) ([]byte, error) {
	proof, err := EncodeBundle(bundle)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return responseArgs.Pack(value, proof)
}

// DecodeResponse unpacks a gateway answer.
func DecodeResponse(data []byte) ([]byte, *ProofBundle, error) {
	values, err := responseArgs.Unpack(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}
	bundle, err := DecodeBundle(values[1].([]byte))
	if err != nil {
		return nil, nil, err
	}
	return values[0].([]byte), bundle, nil
}
