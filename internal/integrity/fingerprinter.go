package integrity

import (
	"crypto/subtle"

	"attest/internal/canonical"
	dErrors "attest/pkg/domain-errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Comparison is the result of comparing two digests.
type Comparison int

const (
	NotEqual Comparison = iota
	Equal
)

func (c Comparison) String() string {
	if c == Equal {
		return "equal"
	}
	return "not-equal"
}

type Option func(*Fingerprinter)

// WithAlgorithm sets the algorithm for new fingerprints.
func WithAlgorithm(alg Algorithm) Option {
	return func(f *Fingerprinter) { f.alg = alg }
}

func WithCanonicalizer(c *canonical.Canonicalizer) Option {
	return func(f *Fingerprinter) { f.canon = c }
}

// Fingerprinter hashes canonical content. Safe for concurrent use.
type Fingerprinter struct {
	alg   Algorithm
	canon *canonical.Canonicalizer
}

func New(opts ...Option) (*Fingerprinter, error) {
	f := &Fingerprinter{alg: DefaultAlgorithm}
	for _, opt := range opts {
		opt(f)
	}
	if !f.alg.Supported() {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported fingerprint algorithm")
	}
	if f.canon == nil {
		f.canon = canonical.New()
	}
	return f, nil
}

func (f *Fingerprinter) Algorithm() Algorithm { return f.alg }

// Fingerprint hashes canonical bytes with the configured algorithm.
func (f *Fingerprinter) Fingerprint(b []byte) (Digest, error) {
	return f.FingerprintWith(f.alg, b)
}

// FingerprintWith hashes with an explicit algorithm, used when re-checking a
// digest recorded under an older default.
func (f *Fingerprinter) FingerprintWith(alg Algorithm, b []byte) (Digest, error) {
	if !alg.Supported() {
		return Digest{}, dErrors.New(dErrors.CodeValidation, "unsupported fingerprint algorithm")
	}
	sum, err := multihash.Sum(b, uint64(alg), -1)
	if err != nil {
		return Digest{}, dErrors.Wrap(err, dErrors.CodeInternal, "compute fingerprint")
	}
	return Digest{c: cid.NewCidV1(cid.Raw, sum)}, nil
}

// Content canonicalizes and fingerprints in one step. Canonicalization
// failures carry CodeCanonicalization.
func (f *Fingerprinter) Content(content *canonical.Map) (Digest, error) {
	return f.ContentWith(f.alg, content)
}

func (f *Fingerprinter) ContentWith(alg Algorithm, content *canonical.Map) (Digest, error) {
	b, err := f.canon.Canonicalize(content)
	if err != nil {
		return Digest{}, dErrors.Wrap(err, dErrors.CodeCanonicalization, "canonicalize credential content")
	}
	return f.FingerprintWith(alg, b)
}

// Verify recomputes content under expected's own algorithm and compares.
func (f *Fingerprinter) Verify(content *canonical.Map, expected Digest) (Comparison, error) {
	live, err := f.ContentWith(expected.Algorithm(), content)
	if err != nil {
		return NotEqual, err
	}
	return Compare(live, expected), nil
}

// Compare is plain equality: content digests are not secret.
func Compare(a, b Digest) Comparison {
	if a.IsZero() || b.IsZero() {
		return NotEqual
	}
	if a.c.Equals(b.c) {
		return Equal
	}
	return NotEqual
}

// SecretEqual compares secret-derived bytes in constant time for equal
// lengths. Callers should hash inputs to a fixed length first.
func SecretEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
