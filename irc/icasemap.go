package irc

// ICaseMap maps ICaseStr keys to values of type V, comparing and hashing
// keys under RFC 1459 case folding while remembering the casing of the most
// recent insertion for each key. It mirrors irc2's IDict: lookups accept
// any casing, but iteration (Each, Keys) yields the casing last written.
type ICaseMap[V any] struct {
	entries map[string]icaseEntry[V]
}

type icaseEntry[V any] struct {
	key   ICaseStr
	value V
}

// NewICaseMap returns an empty ICaseMap.
func NewICaseMap[V any]() *ICaseMap[V] {
	return &ICaseMap[V]{entries: map[string]icaseEntry[V]{}}
}

// Get returns the value stored under key (compared case-insensitively) and
// whether it was present.
func (m *ICaseMap[V]) Get(key ICaseStr) (v V, ok bool) {
	e, ok := m.entries[key.Fold()]
	if !ok {
		return v, false
	}
	return e.value, true
}

// Set stores value under key. If an entry already exists under a
// differently-cased form of key, its casing is replaced by this call's.
func (m *ICaseMap[V]) Set(key ICaseStr, value V) {
	m.entries[key.Fold()] = icaseEntry[V]{key: key, value: value}
}

// Delete removes the entry for key, if any.
func (m *ICaseMap[V]) Delete(key ICaseStr) {
	delete(m.entries, key.Fold())
}

// Has reports whether key is present.
func (m *ICaseMap[V]) Has(key ICaseStr) bool {
	_, ok := m.entries[key.Fold()]
	return ok
}

// Len returns the number of entries.
func (m *ICaseMap[V]) Len() int {
	return len(m.entries)
}

// Each calls f once per entry, in unspecified order, passing the originally
// cased key.
func (m *ICaseMap[V]) Each(f func(key ICaseStr, value V)) {
	for _, e := range m.entries {
		f(e.key, e.value)
	}
}

// Keys returns the originally-cased keys, in unspecified order.
func (m *ICaseMap[V]) Keys() []ICaseStr {
	keys := make([]ICaseStr, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.key)
	}
	return keys
}
