package container

import "container/heap"

// Bid is the minimal shape BidHeap orders by; internal/chain.ProvisionBid
// satisfies it. Kept as its own tiny interface so this package does not
// depend on internal/chain.
type Bid interface {
	BidAmount() float64
}

// BidHeap is a max-heap of bids ordered by BidAmount (higher is better),
// per spec.md §3 "ProvisionBid ... Max-heap ordering by bid-amount". Ties
// are broken arbitrarily, as spec.md permits; insertion order among equal
// bids is not preserved.
type BidHeap[T Bid] struct {
	data bidSlice[T]
}

// NewBidHeap creates an empty bid max-heap.
func NewBidHeap[T Bid]() *BidHeap[T] {
	h := &BidHeap[T]{}
	heap.Init(&h.data)
	return h
}

// Insert pushes a bid onto the heap.
func (h *BidHeap[T]) Insert(b T) {
	heap.Push(&h.data, b)
}

// Len returns the number of bids currently held.
func (h *BidHeap[T]) Len() int { return h.data.Len() }

// Pop removes and returns the best (highest-amount) bid. Panics if empty;
// callers must check Len() first.
func (h *BidHeap[T]) Pop() T {
	return heap.Pop(&h.data).(T)
}

// Peek returns the best bid without removing it, and whether one exists.
func (h *BidHeap[T]) Peek() (T, bool) {
	var zero T
	if len(h.data) == 0 {
		return zero, false
	}
	return h.data[0], true
}

// bidSlice implements container/heap.Interface for a slice of bids.
type bidSlice[T Bid] []T

func (s bidSlice[T]) Len() int { return len(s) }
func (s bidSlice[T]) Less(i, j int) bool {
	// container/heap implements a min-heap over Less; inverting the
	// comparison turns it into a max-heap by bid amount.
	return s[i].BidAmount() > s[j].BidAmount()
}
func (s bidSlice[T]) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *bidSlice[T]) Push(x any) {
	*s = append(*s, x.(T))
}

func (s *bidSlice[T]) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}
