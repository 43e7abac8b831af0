// Package canonical models open-schema credential content as typed values and
// serializes it into a deterministic byte sequence for fingerprinting.
//
// Two contents that differ only in key insertion order, numeric spelling
// ("3", "3.0", "3e0"), timestamp zone, or a null versus a missing optional
// field produce the same bytes. Any other difference produces different bytes.
package canonical

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
)

// Kind is the semantic type of a Value.
type Kind uint8

const (
	// KindAbsent is the explicit "no value" sentinel. Map entries holding it
	// are omitted from the canonical form.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindString
	KindNumber
	KindTimestamp
	KindList
	KindMap
)

var kindNames = [...]string{"absent", "null", "bool", "string", "number", "timestamp", "list", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable typed content value. The zero Value is Absent.
type Value struct {
	kind Kind
	b    bool
	s    string
	n    *big.Rat
	t    time.Time
	list []Value
	m    *Map
}

func Absent() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindNumber, n: new(big.Rat).SetInt64(i)} }

// Rat returns an exact rational number value. r is copied.
func Rat(r *big.Rat) Value { return Value{kind: KindNumber, n: new(big.Rat).Set(r)} }

// Decimal parses a decimal or scientific literal ("12.50", "-3", "1e3")
// exactly, without going through binary floating point.
func Decimal(s string) (Value, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Value{}, fmt.Errorf("%w: not a decimal literal", ErrUnsupported)
	}
	return Value{kind: KindNumber, n: r}, nil
}

// Float converts f via its shortest round-trip decimal spelling so 0.1
// becomes exactly 1/10. NaN and infinities are rejected.
func Float(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite number", ErrUnsupported)
	}
	return Decimal(strconv.FormatFloat(f, 'g', -1, 64))
}

// Timestamp stores t normalized to UTC. Monotonic clock data is dropped.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC().Round(0)} }

// List copies vs.
func List(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// MapValue wraps a deep copy of m.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m.Clone()}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsEmpty reports whether v carries no information: absent or null.
func (v Value) IsEmpty() bool { return v.kind == KindAbsent || v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsTimestamp() (time.Time, bool) { return v.t, v.kind == KindTimestamp }

// AsRat returns a copy of the numeric value.
func (v Value) AsRat() (*big.Rat, bool) {
	if v.kind != KindNumber {
		return nil, false
	}
	return new(big.Rat).Set(v.n), true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

func (v Value) AsMap() (*Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m.Clone(), true
}

// Equal reports semantic equality, the same relation canonical encoding uses.
func (v Value) Equal(o Value) bool {
	if v.IsEmpty() && o.IsEmpty() {
		return true
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n.Cmp(o.n) == 0
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}
	return false
}

func (v Value) clone() Value {
	switch v.kind {
	case KindNumber:
		v.n = new(big.Rat).Set(v.n)
	case KindList:
		cp := make([]Value, len(v.list))
		for i := range v.list {
			cp[i] = v.list[i].clone()
		}
		v.list = cp
	case KindMap:
		v.m = v.m.Clone()
	}
	return v
}
