package playback

// source is one buffer scheduled on a [Context]. start and end are absolute
// frame positions on the context clock.
type source struct {
	samples []float32 // interleaved in the context's channel layout
	start   int64
	end     int64
	seq     uint64 // monotonic insertion order for FIFO tie-breaking
}

// sourceHeap implements [container/heap.Interface] as a min-heap ordered by
// start frame, with FIFO tie-breaking on seq.
type sourceHeap []*source

func (h sourceHeap) Len() int { return len(h) }

// Less reports whether source i starts before source j. Sources starting on
// the same frame fall back to insertion order.
func (h sourceHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].seq < h[j].seq
}

func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *sourceHeap) Push(x any) {
	*h = append(*h, x.(*source))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}
