package canonical

import (
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"time"
)

// FromAny converts decoded Go data into a Value. Go maps carry no order, so
// their keys are inserted sorted.
func FromAny(in any) (Value, error) {
	return fromAny(in, "$")
}

func fromAny(in any, path string) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x.clone(), nil
	case *Map:
		return MapValue(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Rat(new(big.Rat).SetInt(new(big.Int).SetUint64(x))), nil
	case float32:
		v, err := Float(float64(x))
		return v, wrapPath(path, err)
	case float64:
		v, err := Float(x)
		return v, wrapPath(path, err)
	case json.Number:
		v, err := Decimal(x.String())
		return v, wrapPath(path, err)
	case *big.Rat:
		return Rat(x), nil
	case time.Time:
		return Timestamp(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := fromAny(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		m, err := mapFromAny(x, path)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fail(path, fmt.Errorf("%w: %T", ErrUnsupported, in))
}

// MapFromAny converts a decoded JSON object.
func MapFromAny(in map[string]any) (*Map, error) {
	return mapFromAny(in, "$")
}

func mapFromAny(in map[string]any, path string) (*Map, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	m := NewMap()
	for _, k := range keys {
		v, err := fromAny(in[k], path+"."+k)
		if err != nil {
			return nil, err
		}
		m.keys = append(m.keys, k)
		m.values[k] = v
	}
	return m, nil
}

func wrapPath(path string, err error) error {
	if err == nil {
		return nil
	}
	return fail(path, err)
}
