package canonical

import "slices"

// Map is an insertion-ordered mapping of field names to values. Order is kept
// for display only; canonical encoding sorts keys.
type Map struct {
	keys   []string
	values map[string]Value
}

func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set adds or replaces key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) *Map {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v.clone()
	return m
}

// Get returns the value for key. Missing keys yield Absent and false.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

// GetString is a convenience for display fields.
func (m *Map) GetString(key string) string {
	v, _ := m.Get(key)
	s, _ := v.AsString()
	return s
}

func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Range calls fn in insertion order until it returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy. Cloning nil yields an empty map.
func (m *Map) Clone() *Map {
	out := NewMap()
	if m == nil {
		return out
	}
	out.keys = slices.Clone(m.keys)
	for k, v := range m.values {
		out.values[k] = v.clone()
	}
	return out
}

// Equal compares semantically: entries holding Absent or Null are ignored.
func (m *Map) Equal(o *Map) bool {
	a, b := m.present(), o.present()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (m *Map) present() map[string]Value {
	out := make(map[string]Value)
	m.Range(func(k string, v Value) bool {
		if !v.IsEmpty() {
			out[k] = v
		}
		return true
	})
	return out
}

// Merge returns a copy of m with every entry of overlay applied on top.
func (m *Map) Merge(overlay *Map) *Map {
	out := m.Clone()
	overlay.Range(func(k string, v Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}
