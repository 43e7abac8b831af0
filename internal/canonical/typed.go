package canonical

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// The typed JSON form is the storage encoding. Unlike plain JSON it keeps
// timestamps, exact numbers and the absent sentinel distinguishable.

type typedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type typedEntry struct {
	Key   string     `json:"key"`
	Value typedValue `json:"value"`
}

// EncodeTyped serializes m for storage.
func EncodeTyped(m *Map) ([]byte, error) {
	entries, err := typedEntries(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entries)
}

// DecodeTyped is the inverse of EncodeTyped.
func DecodeTyped(data []byte) (*Map, error) {
	var entries []typedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode typed content: %w", err)
	}
	return mapFromEntries(entries)
}

func typedEntries(m *Map) ([]typedEntry, error) {
	entries := make([]typedEntry, 0, m.Len())
	var err error
	m.Range(func(k string, v Value) bool {
		var tv typedValue
		tv, err = toTyped(v)
		if err != nil {
			return false
		}
		entries = append(entries, typedEntry{Key: k, Value: tv})
		return true
	})
	return entries, err
}

func toTyped(v Value) (typedValue, error) {
	tv := typedValue{Type: v.kind.String()}
	var payload any
	switch v.kind {
	case KindAbsent, KindNull:
		return tv, nil
	case KindBool:
		payload = v.b
	case KindString:
		payload = v.s
	case KindNumber:
		payload = v.n.RatString()
	case KindTimestamp:
		payload = v.t.UTC().Format(time.RFC3339Nano)
	case KindList:
		items := make([]typedValue, len(v.list))
		for i, item := range v.list {
			t, err := toTyped(item)
			if err != nil {
				return tv, err
			}
			items[i] = t
		}
		payload = items
	case KindMap:
		entries, err := typedEntries(v.m)
		if err != nil {
			return tv, err
		}
		payload = entries
	default:
		return tv, fmt.Errorf("%w: kind %s", ErrUnsupported, v.kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return tv, err
	}
	tv.Value = raw
	return tv, nil
}

func mapFromEntries(entries []typedEntry) (*Map, error) {
	m := NewMap()
	for _, e := range entries {
		v, err := fromTyped(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		m.Set(e.Key, v)
	}
	return m, nil
}

func fromTyped(tv typedValue) (Value, error) {
	switch tv.Type {
	case "absent":
		return Absent(), nil
	case "null":
		return Null(), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "string":
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	case "number":
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return Value{}, err
		}
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return Value{}, fmt.Errorf("%w: number %q", ErrUnsupported, s)
		}
		return Value{kind: KindNumber, n: r}, nil
	case "timestamp":
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return Value{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	case "list":
		var items []typedValue
		if err := json.Unmarshal(tv.Value, &items); err != nil {
			return Value{}, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			v, err := fromTyped(item)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Value{kind: KindList, list: out}, nil
	case "map":
		var entries []typedEntry
		if err := json.Unmarshal(tv.Value, &entries); err != nil {
			return Value{}, err
		}
		m, err := mapFromEntries(entries)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("%w: type %q", ErrUnsupported, tv.Type)
}
