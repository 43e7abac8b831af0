// Package integrity computes versioned content fingerprints over canonical
// bytes and compares them.
//
// A Digest is a CIDv1 (raw codec) wrapping a multihash, so the hash function
// travels with the value. Changing the default algorithm never breaks
// verification of fingerprints recorded under an older one.
package integrity

import (
	"fmt"
	"strings"

	dErrors "attest/pkg/domain-errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Algorithm is a multihash function code.
type Algorithm uint64

const (
	SHA2_256 Algorithm = multihash.SHA2_256
	SHA3_256 Algorithm = multihash.SHA3_256
)

// DefaultAlgorithm is used for new fingerprints.
const DefaultAlgorithm = SHA2_256

var algorithmNames = map[Algorithm]string{
	SHA2_256: "sha2-256",
	SHA3_256: "sha3-256",
}

func (a Algorithm) String() string {
	if n, ok := algorithmNames[a]; ok {
		return n
	}
	return fmt.Sprintf("0x%x", uint64(a))
}

// Supported reports whether a can be used to fingerprint content.
func (a Algorithm) Supported() bool {
	_, ok := algorithmNames[a]
	return ok
}

// ParseAlgorithm accepts the names used in configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	for alg, n := range algorithmNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return alg, nil
		}
	}
	return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported fingerprint algorithm %q", name))
}

// Digest is a fingerprint. The zero Digest is not valid.
type Digest struct {
	c cid.Cid
}

// IsZero reports whether d was never set.
func (d Digest) IsZero() bool { return !d.c.Defined() }

// String renders the digest as a base32 CIDv1, e.g. "bafkrei...".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return d.c.String()
}

func (d Digest) Algorithm() Algorithm {
	if d.IsZero() {
		return 0
	}
	return Algorithm(d.c.Prefix().MhType)
}

// Multihash returns the self-describing hash bytes.
func (d Digest) Multihash() []byte {
	if d.IsZero() {
		return nil
	}
	return []byte(d.c.Hash())
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest decodes the textual form. Any multibase the CID library
// understands is accepted, so upper-cased copies from external ledgers parse
// to the same digest.
func ParseDigest(s string) (Digest, error) {
	c, err := cid.Decode(strings.TrimSpace(s))
	if err != nil {
		return Digest{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed fingerprint")
	}
	if c.Prefix().Codec != cid.Raw {
		return Digest{}, dErrors.New(dErrors.CodeValidation, "fingerprint must use the raw codec")
	}
	if !Algorithm(c.Prefix().MhType).Supported() {
		return Digest{}, dErrors.New(dErrors.CodeValidation, "unsupported fingerprint algorithm")
	}
	return Digest{c: c}, nil
}

// MustParseDigest is for tests and fixtures.
func MustParseDigest(s string) Digest {
	d, err := ParseDigest(s)
	if err != nil {
		panic(err)
	}
	return d
}
