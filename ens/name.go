package ens

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/miekg/dns"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName is returned when a name cannot be normalised or decoded.
var ErrInvalidName = errors.New("ens: invalid name")

// maxNameLength bounds the DNS wire encoding of a name.
const maxNameLength = 255

// Normalize lower-cases the name, applies NFKC and strips a trailing root dot.
// Empty labels are rejected; the empty string denotes the root.
func Normalize(name string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(name), ".")
	if trimmed == "" {
		return "", nil
	}
	normalized := norm.NFKC.String(strings.ToLower(trimmed))
	for _, label := range strings.Split(normalized, ".") {
		if label == "" {
			return "", fmt.Errorf("%w: empty label in %q", ErrInvalidName, name)
		}
		if strings.ContainsAny(label, "\\ ") {
			return "", fmt.Errorf("%w: label %q contains reserved characters", ErrInvalidName, label)
		}
	}
	return normalized, nil
}

// NameHash derives the node identifying a fully-qualified name. The root name
// hashes to the zero node.
func NameHash(name string) common.Hash {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return common.Hash{}
	}
	return hashLabels(strings.Split(name, "."))
}

func hashLabels(labels []string) common.Hash {
	var node common.Hash
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := ethcrypto.Keccak256([]byte(labels[i]))
		node = ethcrypto.Keccak256Hash(node[:], labelHash)
	}
	return node
}

// DNSEncode packs a dotted name into DNS wire format, e.g. "alice.eth"
// becomes "\x05alice\x03eth\x00".
func DNSEncode(name string) ([]byte, error) {
	fqdn := dns.Fqdn(strings.TrimSuffix(name, "."))
	buf := make([]byte, len(fqdn)+1)
	n, err := dns.PackDomainName(fqdn, buf, 0, nil, false)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %q: %v", ErrInvalidName, name, err)
	}
	return buf[:n], nil
}

// DNSDecode unpacks a DNS wire-format name into its dotted representation.
// Labels are returned byte for byte so UTF-8 names survive the round trip.
func DNSDecode(wire []byte) (string, error) {
	labels, err := decodeLabels(wire)
	if err != nil {
		return "", err
	}
	return strings.Join(labels, "."), nil
}

func decodeLabels(wire []byte) ([]string, error) {
	if len(wire) == 0 || len(wire) > maxNameLength {
		return nil, fmt.Errorf("%w: wire name length %d", ErrInvalidName, len(wire))
	}
	labels := make([]string, 0, 4)
	offset := 0
	for {
		if offset >= len(wire) {
			return nil, fmt.Errorf("%w: missing root label", ErrInvalidName)
		}
		size := int(wire[offset])
		offset++
		if size == 0 {
			break
		}
		if size > 63 || offset+size > len(wire) {
			return nil, fmt.Errorf("%w: label overruns name", ErrInvalidName)
		}
		label := string(wire[offset : offset+size])
		if strings.Contains(label, ".") {
			return nil, fmt.Errorf("%w: label %q contains a dot", ErrInvalidName, label)
		}
		labels = append(labels, label)
		offset += size
	}
	if offset != len(wire) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidName, len(wire)-offset)
	}
	return labels, nil
}

// NodeFromDNS decodes a wire-format name and returns it with its node. The
// node is hashed from the wire labels so escape characters stay inside their
// label.
func NodeFromDNS(wire []byte) (string, common.Hash, error) {
	labels, err := decodeLabels(wire)
	if err != nil {
		return "", common.Hash{}, err
	}
	return strings.Join(labels, "."), hashLabels(labels), nil
}

// Parent returns the name with its leftmost label removed.
func Parent(name string) string {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
