package result

// OrderedMap is the named-argument carrier for the façade's *Dict
// operations. Per Design Note, it replaces the source's red-black tree
// (insertion-order-preserving, key-ordered) with a slice of pairs plus an
// index for O(1) lookup — iteration is deterministic in insertion order,
// which is what every *Dict caller in this codebase actually needs; nothing
// here depends on key-sorted iteration.
type OrderedMap struct {
	pairs []FieldValue
	index map[string]int
}

// NewOrderedMap builds an OrderedMap from an initial set of pairs, in order.
func NewOrderedMap(pairs ...FieldValue) *OrderedMap {
	m := &OrderedMap{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		m.Set(p.Name, p.Value)
	}
	return m
}

// Set inserts or updates the value for name, preserving the original
// insertion position on update.
func (m *OrderedMap) Set(name string, value any) {
	if i, ok := m.index[name]; ok {
		m.pairs[i].Value = value
		return
	}
	m.index[name] = len(m.pairs)
	m.pairs = append(m.pairs, FieldValue{Name: name, Value: value})
}

// Get returns the value for name and whether it was present.
func (m *OrderedMap) Get(name string) (any, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return m.pairs[i].Value, true
}

// Has reports whether name is present.
func (m *OrderedMap) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Pairs returns the (name, value) pairs in insertion order. The returned
// slice must not be mutated by the caller.
func (m *OrderedMap) Pairs() []FieldValue {
	return m.pairs
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int { return len(m.pairs) }
