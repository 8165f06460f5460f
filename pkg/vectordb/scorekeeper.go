package vectordb

import "container/heap"

// scoredItem pairs an arbitrary key with its similarity score.
type scoredItem[K any] struct {
	key   K
	score int32
}

// minHeap is a container/heap.Interface over scoredItem, ordered so the
// lowest score is always at index 0 — the element a bounded top-K keeper
// evicts first.
type minHeap[K any] []scoredItem[K]

func (h minHeap[K]) Len() int            { return len(h) }
func (h minHeap[K]) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h minHeap[K]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap[K]) Push(x interface{}) { *h = append(*h, x.(scoredItem[K])) }
func (h *minHeap[K]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scoreKeeper retains the K highest-scoring keys seen via Offer, in no
// particular internal order until Drain is called.
type scoreKeeper[K any] struct {
	k int
	h minHeap[K]
}

// newScoreKeeper creates a scoreKeeper bounded to the top k items.
func newScoreKeeper[K any](k int) *scoreKeeper[K] {
	return &scoreKeeper[K]{k: k}
}

// Offer considers key/score for inclusion in the top-K set.
func (s *scoreKeeper[K]) Offer(key K, score int32) {
	if s.k <= 0 {
		return
	}
	if len(s.h) < s.k {
		heap.Push(&s.h, scoredItem[K]{key: key, score: score})
		return
	}
	if len(s.h) > 0 && score > s.h[0].score {
		s.h[0] = scoredItem[K]{key: key, score: score}
		heap.Fix(&s.h, 0)
	}
}

// Drain returns a copy of the retained items ordered by descending score;
// the keeper itself is left unchanged. n is bounded by k (small), so a selection sort avoids
// pulling in a generic sort.Slice comparator for this hot path.
func (s *scoreKeeper[K]) Drain() []scoredItem[K] {
	items := make([]scoredItem[K], len(s.h))
	copy(items, s.h)
	for i := 0; i < len(items); i++ {
		maxIdx := i
		for j := i + 1; j < len(items); j++ {
			if items[j].score > items[maxIdx].score {
				maxIdx = j
			}
		}
		items[i], items[maxIdx] = items[maxIdx], items[i]
	}
	return items
}
