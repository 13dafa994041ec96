package ccip

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"l2resolver/layout"
)

// OffchainLookup is the directive a resolver returns instead of a value.
type OffchainLookup struct {
	Sender           common.Address
	URLs             []string
	CallData         []byte
	CallbackFunction [4]byte
	ExtraData        []byte
}

// Error implements error so a lookup can travel up a call stack the way the
// revert does on chain.
func (l *OffchainLookup) Error() string {
	return fmt.Sprintf("offchain lookup via %d gateway(s) for %s", len(l.URLs), l.Sender.Hex())
}

// EncodeRevert returns the revert data of the OffchainLookup error.
func (l *OffchainLookup) EncodeRevert() ([]byte, error) {
	lookupErr := resolverABI.Errors[errorOffchainLookup]
	args, err := lookupErr.Inputs.Pack(l.Sender, l.URLs, l.CallData, l.CallbackFunction, l.ExtraData)
	if err != nil {
		return nil, err
	}
	return append(common.CopyBytes(lookupErr.ID[:4]), args...), nil
}

// DecodeOffchainLookup parses OffchainLookup revert data.
func DecodeOffchainLookup(revert []byte) (*OffchainLookup, error) {
	lookupErr := resolverABI.Errors[errorOffchainLookup]
	if len(revert) < 4 || !bytes.Equal(revert[:4], lookupErr.ID[:4]) {
		return nil, fmt.Errorf("%w: not an OffchainLookup revert", ErrMalformed)
	}
	values, err := lookupErr.Inputs.Unpack(revert[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: OffchainLookup: %v", ErrMalformed, err)
	}
	return &OffchainLookup{
		Sender:           values[0].(common.Address),
		URLs:             values[1].([]string),
		CallData:         values[2].([]byte),
		CallbackFunction: values[3].([4]byte),
		ExtraData:        values[4].([]byte),
	}, nil
}

// Echo is the query context a resolver hands to the client and receives back
// in its callback.
type Echo struct {
	Sender   common.Address
	Context  common.Address
	Name     []byte
	Node     common.Hash
	Kind     uint8
	Key      string
	CoinType uint64
	Nonce    [16]byte
}

// NewEcho describes q as asked of sender for context, tagged with a fresh
// nonce.
func NewEcho(sender, context common.Address, q Query) Echo {
	echo := Echo{
		Sender:  sender,
		Context: context,
		Name:    common.CopyBytes(q.Name),
		Node:    q.Node,
		Kind:    uint8(q.Field.Kind()),
		Nonce:   uuid.New(),
	}
	switch f := q.Field.(type) {
	case layout.Text:
		echo.Key = f.Key
	case layout.Addr:
		echo.CoinType = f.CoinType
	}
	return echo
}

// Field rebuilds the requested field.
func (e Echo) Field() (layout.Field, error) {
	switch layout.Kind(e.Kind) {
	case layout.KindText:
		return layout.Text{Key: e.Key}, nil
	case layout.KindAddr:
		return layout.Addr{CoinType: e.CoinType}, nil
	case layout.KindContenthash:
		return layout.Contenthash{}, nil
	default:
		return nil, fmt.Errorf("%w: echo field kind %d", ErrMalformed, e.Kind)
	}
}

// Query returns the lookup the echo describes.
func (e Echo) Query() (Query, error) {
	field, err := e.Field()
	if err != nil {
		return Query{}, err
	}
	return Query{Name: common.CopyBytes(e.Name), Node: e.Node, Field: field}, nil
}

// EncodeEcho serialises an echo with RLP.
func EncodeEcho(e Echo) ([]byte, error) {
	return rlp.EncodeToBytes(&e)
}

// DecodeEcho parses an RLP encoded echo.
func DecodeEcho(data []byte) (Echo, error) {
	var e Echo
	if err := rlp.DecodeBytes(data, &e); err != nil {
		return Echo{}, fmt.Errorf("%w: extra data: %v", ErrMalformed, err)
	}
	return e, nil
}

// ExpandURL substitutes {sender} and {data} in a gateway URL template. post
// reports whether the request must be sent as a JSON POST, which is the case
// when the template does not reference {data}.
func ExpandURL(template string, sender common.Address, data []byte) (url string, post bool) {
	url = strings.ReplaceAll(template, "{sender}", strings.ToLower(sender.Hex()))
	post = !strings.Contains(template, "{data}")
	url = strings.ReplaceAll(url, "{data}", hexutil.Encode(data))
	return url, post
}

// Request is the JSON body of a POST gateway request.
type Request struct {
	Sender string        `json:"sender"`
	Data   hexutil.Bytes `json:"data"`
}

// Response is the JSON body of a gateway answer.
type Response struct {
	Data hexutil.Bytes `json:"data"`
}

// ErrorResponse is the JSON body of a failed gateway request.
type ErrorResponse struct {
	Message string `json:"message"`
}
