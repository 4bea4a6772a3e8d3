package leaderboard

import "github.com/tutu-network/econ/internal/domain"

// ─── Bounded Min-Heap ───────────────────────────────────────────────────────
// Keeps the N richest accounts seen so far. The root is the poorest of the
// kept entries, so a new account only has to beat the root to get in.
//
// Operations:
//   Offer:  O(log n), replace root and sift down, or append and sift up
//   Sorted: O(n log n), richest first
//
// Ties on net worth rank by user id ascending so the board is stable.

type topN struct {
	limit int
	heap  []domain.Account
}

func newTopN(limit int) *topN {
	return &topN{limit: limit, heap: make([]domain.Account, 0, limit)}
}

// below reports whether a ranks below b.
func below(a, b domain.Account) bool {
	if a.Total() != b.Total() {
		return a.Total() < b.Total()
	}
	return a.UserID > b.UserID
}

// Offer considers a for the board.
func (h *topN) Offer(a domain.Account) {
	if h.limit <= 0 {
		return
	}
	if len(h.heap) < h.limit {
		h.heap = append(h.heap, a)
		h.siftUp(len(h.heap) - 1)
		return
	}
	if below(h.heap[0], a) {
		h.heap[0] = a
		h.siftDown(0)
	}
}

// Sorted drains the heap, richest first.
func (h *topN) Sorted() []domain.Account {
	out := make([]domain.Account, len(h.heap))
	for i := len(h.heap) - 1; i >= 0; i-- {
		out[i] = h.heap[0]
		last := len(h.heap) - 1
		h.heap[0] = h.heap[last]
		h.heap = h.heap[:last]
		if len(h.heap) > 0 {
			h.siftDown(0)
		}
	}
	return out
}

func (h *topN) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if !below(h.heap[idx], h.heap[parent]) {
			break
		}
		h.heap[idx], h.heap[parent] = h.heap[parent], h.heap[idx]
		idx = parent
	}
}

func (h *topN) siftDown(idx int) {
	n := len(h.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && below(h.heap[left], h.heap[smallest]) {
			smallest = left
		}
		if right < n && below(h.heap[right], h.heap[smallest]) {
			smallest = right
		}
		if smallest == idx {
			return
		}
		h.heap[idx], h.heap[smallest] = h.heap[smallest], h.heap[idx]
		idx = smallest
	}
}
