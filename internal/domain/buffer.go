package domain

// ReadingBuffer is a fixed-capacity circular buffer of metric samples.
// Once full, each push overwrites the oldest entry in O(1).
type ReadingBuffer struct {
	values []int
	head   int
	count  int
}

// NewReadingBuffer allocates a buffer holding at most capacity samples.
func NewReadingBuffer(capacity int) *ReadingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReadingBuffer{values: make([]int, capacity)}
}

// Push appends a sample, evicting the oldest one when full.
func (b *ReadingBuffer) Push(v int) {
	idx := (b.head + b.count) % len(b.values)
	b.values[idx] = v
	if b.count < len(b.values) {
		b.count++
	} else {
		b.head = (b.head + 1) % len(b.values)
	}
}

// Len returns the number of retained samples.
func (b *ReadingBuffer) Len() int { return b.count }

// Last returns the most recent sample, if any.
func (b *ReadingBuffer) Last() (int, bool) {
	if b.count == 0 {
		return 0, false
	}
	idx := (b.head + b.count - 1) % len(b.values)
	return b.values[idx], true
}

// Values returns retained samples oldest first.
func (b *ReadingBuffer) Values() []int {
	out := make([]int, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.values[(b.head+i)%len(b.values)]
	}
	return out
}
