package session

// idleHeap orders open sessions by LastSeen so the longest-idle session is
// always at the root. Ties fall back to table order.
type idleHeap []*Session

func (h idleHeap) Len() int { return len(h) }

func (h idleHeap) Less(i, j int) bool {
	if h[i].LastSeen.Equal(h[j].LastSeen) {
		return h[i].seq < h[j].seq
	}
	return h[i].LastSeen.Before(h[j].LastSeen)
}

func (h idleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i
	h[j].slot = j
}

func (h *idleHeap) Push(x any) {
	s := x.(*Session)
	s.slot = len(*h)
	*h = append(*h, s)
}

func (h *idleHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.slot = -1
	*h = old[:n-1]
	return s
}
