package canonical

import (
	"bytes"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"unicode/utf8"
)

// Version identifies the encoding scheme. It is written as the first line of
// every canonical form so a scheme change can never collide with old bytes.
const Version = "c14n/1"

// TimestampLayout is the fixed-width UTC layout used for timestamp values.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

const (
	DefaultMaxValueBytes = 64 << 10
	DefaultMaxTotalBytes = 1 << 20
	DefaultMaxDepth      = 32
	DefaultMaxEntries    = 4096
)

// Limits bound the input accepted by a Canonicalizer.
type Limits struct {
	MaxValueBytes int // per string or key
	MaxTotalBytes int // whole encoding
	MaxDepth      int
	MaxEntries    int // per map or list
}

func DefaultLimits() Limits {
	return Limits{
		MaxValueBytes: DefaultMaxValueBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
		MaxDepth:      DefaultMaxDepth,
		MaxEntries:    DefaultMaxEntries,
	}
}

type Option func(*Canonicalizer)

func WithLimits(l Limits) Option {
	return func(c *Canonicalizer) { c.limits = l }
}

// WithMaxValueBytes overrides only the per-value limit.
func WithMaxValueBytes(n int) Option {
	return func(c *Canonicalizer) {
		if n > 0 {
			c.limits.MaxValueBytes = n
		}
	}
}

// Canonicalizer is stateless after construction and safe for concurrent use.
type Canonicalizer struct {
	limits Limits
}

func New(opts ...Option) *Canonicalizer {
	c := &Canonicalizer{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonicalize encodes content.
//
// Grammar (every token is tag, decimal length or count, ':' and payload):
//
//	null      z0:
//	bool      b1:1 | b1:0
//	string    s<len>:<utf-8 bytes>
//	number    n<len>:<reduced rational, "-5/4" or "3">
//	timestamp t<len>:<TimestampLayout in UTC>
//	list      l<count>:<item>...            absent items encode as null
//	map       m<count>:(<key string><value>)...  keys sorted bytewise, absent and null entries omitted
//
// Length prefixes make payloads opaque, so delimiter characters inside
// strings cannot alter structure.
func (c *Canonicalizer) Canonicalize(content *Map) ([]byte, error) {
	e := encoder{limits: c.limits}
	e.buf.WriteString(Version)
	e.buf.WriteByte('\n')
	if err := e.writeMap(content, "$", 1); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// CanonicalizeValue encodes a single value without the version header.
func (c *Canonicalizer) CanonicalizeValue(v Value) ([]byte, error) {
	e := encoder{limits: c.limits}
	if err := e.writeValue(v, "$", 1); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf    bytes.Buffer
	limits Limits
}

func (e *encoder) token(tag byte, payload string, path string) error {
	e.buf.WriteByte(tag)
	e.buf.WriteString(strconv.Itoa(len(payload)))
	e.buf.WriteByte(':')
	e.buf.WriteString(payload)
	return e.checkTotal(path)
}

func (e *encoder) header(tag byte, count int, path string) error {
	if e.limits.MaxEntries > 0 && count > e.limits.MaxEntries {
		return fail(path, fmt.Errorf("%w: %d entries", ErrTooLarge, count))
	}
	e.buf.WriteByte(tag)
	e.buf.WriteString(strconv.Itoa(count))
	e.buf.WriteByte(':')
	return e.checkTotal(path)
}

func (e *encoder) checkTotal(path string) error {
	if e.limits.MaxTotalBytes > 0 && e.buf.Len() > e.limits.MaxTotalBytes {
		return fail(path, fmt.Errorf("%w: encoding over %d bytes", ErrTooLarge, e.limits.MaxTotalBytes))
	}
	return nil
}

func (e *encoder) text(s string, path string) error {
	if !utf8.ValidString(s) {
		return fail(path, ErrInvalidText)
	}
	if e.limits.MaxValueBytes > 0 && len(s) > e.limits.MaxValueBytes {
		return fail(path, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(s)))
	}
	return e.token('s', s, path)
}

func (e *encoder) writeValue(v Value, path string, depth int) error {
	if e.limits.MaxDepth > 0 && depth > e.limits.MaxDepth {
		return fail(path, ErrTooDeep)
	}
	switch v.kind {
	case KindAbsent, KindNull:
		return e.token('z', "", path)
	case KindBool:
		if v.b {
			return e.token('b', "1", path)
		}
		return e.token('b', "0", path)
	case KindString:
		return e.text(v.s, path)
	case KindNumber:
		return e.token('n', ratString(v.n), path)
	case KindTimestamp:
		return e.token('t', v.t.UTC().Format(TimestampLayout), path)
	case KindList:
		if err := e.header('l', len(v.list), path); err != nil {
			return err
		}
		for i, item := range v.list {
			if err := e.writeValue(item, path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		return e.writeMap(v.m, path, depth)
	}
	return fail(path, fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind))
}

func (e *encoder) writeMap(m *Map, path string, depth int) error {
	if e.limits.MaxDepth > 0 && depth > e.limits.MaxDepth {
		return fail(path, ErrTooDeep)
	}
	present := m.present()
	keys := make([]string, 0, len(present))
	for k := range present {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	if err := e.header('m', len(keys), path); err != nil {
		return err
	}
	for _, k := range keys {
		child := path + "." + k
		if err := e.text(k, child); err != nil {
			return err
		}
		if err := e.writeValue(present[k], child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// ratString renders r in lowest terms. big.Rat keeps values normalized, so
// 6/4 and 1.5 both render as "3/2".
func ratString(r *big.Rat) string {
	return r.RatString()
}
