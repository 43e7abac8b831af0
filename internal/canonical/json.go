package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"
)

// Plain JSON is the display and API form: timestamps become RFC 3339
// strings, numbers become JSON numbers, absent entries are skipped. Decoding
// plain JSON keeps object key order and never goes through float64.

func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writePlainMap(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: content must be a JSON object", ErrUnsupported)
	}
	parsed, err := readPlainObject(dec)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writePlain(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePlainMap(buf *bytes.Buffer, m *Map) error {
	buf.WriteByte('{')
	first := true
	var err error
	m.Range(func(k string, v Value) bool {
		if v.IsAbsent() {
			return true
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		err = writePlain(buf, v)
		return err == nil
	})
	buf.WriteByte('}')
	return err
}

func writePlain(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindAbsent, KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindString:
		s, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindNumber:
		if d, ok := decimalString(v.n); ok {
			buf.WriteString(d)
		} else {
			// Non-terminating decimals keep their exact rational form.
			s, _ := json.Marshal(v.n.RatString())
			buf.Write(s)
		}
	case KindTimestamp:
		buf.WriteByte('"')
		buf.WriteString(v.t.UTC().Format(time.RFC3339Nano))
		buf.WriteByte('"')
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writePlain(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		return writePlainMap(buf, v.m)
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind)
	}
	return nil
}

// decimalString renders r as a terminating decimal when its denominator has
// no prime factors besides 2 and 5.
func decimalString(r *big.Rat) (string, bool) {
	if r.IsInt() {
		return r.Num().String(), true
	}
	den := new(big.Int).Set(r.Denom())
	two, five, zero := big.NewInt(2), big.NewInt(5), big.NewInt(0)
	places := 0
	for _, p := range []*big.Int{two, five} {
		n := 0
		mod := new(big.Int)
		for {
			q, m := new(big.Int).QuoRem(den, p, mod)
			if m.Cmp(zero) != 0 {
				break
			}
			den = q
			n++
		}
		places = max(places, n)
	}
	if den.Cmp(big.NewInt(1)) != 0 {
		return "", false
	}
	return r.FloatString(places), true
}

func readPlainObject(dec *json.Decoder) (*Map, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key", ErrUnsupported)
		}
		v, err := readPlainValue(dec)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

func readPlainValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			m, err := readPlainObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindMap, m: m}, nil
		case '[':
			var items []Value
			for dec.More() {
				item, err := readPlainValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindList, list: items}, nil
		}
		return Value{}, fmt.Errorf("%w: unexpected delimiter %q", ErrUnsupported, x)
	default:
		return FromAny(x)
	}
}
