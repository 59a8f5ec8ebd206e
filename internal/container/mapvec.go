// Package container provides the two ordered collections the node runtime
// and chain model rely on: MapVec, an insertion-ordered map with O(1) key
// lookup (used for a block's transfers, a mint's outputs and the mempool),
// and BidHeap, a max-heap of provision bids (see heap.go).
package container

// MapVec is an ordered map: iteration follows insertion order (oldest
// first), while Get/Has/Delete are O(1) by key. It backs every "ordered
// map" field in the data model (Block.Transfers, Mint.Outputs,
// Transfer.Outputs) and the miner's mempool.
type MapVec[K comparable, V any] struct {
	order []K
	items map[K]V
}

// NewMapVec creates an empty MapVec.
func NewMapVec[K comparable, V any]() *MapVec[K, V] {
	return &MapVec[K, V]{items: make(map[K]V)}
}

// Set inserts or updates the value for key. New keys are appended to the
// iteration order; updating an existing key does not move it.
func (m *MapVec[K, V]) Set(k K, v V) {
	if _, ok := m.items[k]; !ok {
		m.order = append(m.order, k)
	}
	m.items[k] = v
}

// Get returns the value for key and whether it was present.
func (m *MapVec[K, V]) Get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

// Has reports whether key is present.
func (m *MapVec[K, V]) Has(k K) bool {
	_, ok := m.items[k]
	return ok
}

// Delete removes key, if present, preserving the order of remaining keys.
func (m *MapVec[K, V]) Delete(k K) {
	if _, ok := m.items[k]; !ok {
		return
	}
	delete(m.items, k)
	for i, kk := range m.order {
		if kk == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *MapVec[K, V]) Len() int { return len(m.order) }

// Keys returns the keys in insertion order.
func (m *MapVec[K, V]) Keys() []K {
	out := make([]K, len(m.order))
	copy(out, m.order)
	return out
}

// Values returns the values in key-insertion order.
func (m *MapVec[K, V]) Values() []V {
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out
}

// Range calls fn for every entry in insertion order, stopping early if fn
// returns false.
func (m *MapVec[K, V]) Range(fn func(K, V) bool) {
	for _, k := range m.order {
		if !fn(k, m.items[k]) {
			return
		}
	}
}

// Head returns the oldest n entries' values (or fewer, if Len() < n).
func (m *MapVec[K, V]) Head(n int) []V {
	if n > len(m.order) {
		n = len(m.order)
	}
	out := make([]V, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.items[m.order[i]])
	}
	return out
}

// Clone returns a shallow copy safe for independent mutation of order/keys.
func (m *MapVec[K, V]) Clone() *MapVec[K, V] {
	c := NewMapVec[K, V]()
	for _, k := range m.order {
		c.Set(k, m.items[k])
	}
	return c
}
