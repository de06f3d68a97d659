package session

// eventRing is a fixed-capacity circular buffer for event-log entries.
type eventRing struct {
	entries []Event
	head    int
	count   int
}

func newEventRing(capacity int) *eventRing {
	if capacity < 1 {
		capacity = 1
	}
	return &eventRing{entries: make([]Event, capacity)}
}

func (r *eventRing) push(e Event) {
	idx := (r.head + r.count) % len(r.entries)
	r.entries[idx] = e
	if r.count < len(r.entries) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.entries)
	}
}

func (r *eventRing) values() []Event {
	out := make([]Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.head+i)%len(r.entries)]
	}
	return out
}
