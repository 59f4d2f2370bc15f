package persistence

import "time"

// saveQueue is a FIFO of *SaveIntent with a sibling free list, so
// entries dropped as tombstones or dispatched are recycled on the
// next pend instead of allocated fresh. Not safe for concurrent use;
// callers hold the daemon's mutex.
type saveQueue struct {
	head, tail *SaveIntent
	free       *SaveIntent
}

// alloc returns a zeroed SaveIntent, reusing one from the free list
// when available.
func (q *saveQueue) alloc() *SaveIntent {
	if q.free != nil {
		si := q.free
		q.free = si.next
		si.next, si.object = nil, nil
		return si
	}
	return &SaveIntent{}
}

func (q *saveQueue) push(si *SaveIntent) {
	si.next = nil
	if q.tail == nil {
		q.head, q.tail = si, si
		return
	}
	q.tail.next = si
	q.tail = si
}

// peek returns the head without removing it, so the daemon can check
// its deadline and pointer identity before committing to dispatch.
func (q *saveQueue) peek() *SaveIntent { return q.head }

// dequeue removes the head and returns it without recycling; the
// caller still needs to read si.object (e.g. to execute the save)
// before the intent is eligible for reuse via recycle.
func (q *saveQueue) dequeue() *SaveIntent {
	si := q.head
	if si == nil {
		return nil
	}
	q.head = si.next
	if q.head == nil {
		q.tail = nil
	}
	return si
}

// recycle returns a dequeued intent to the free list.
func (q *saveQueue) recycle(si *SaveIntent) {
	si.next = q.free
	si.object = nil
	q.free = si
}

func (q *saveQueue) empty() bool { return q.head == nil }

// loadQueue is the load-side equivalent; loads are never coalesced,
// but the free list still avoids per-op allocation under steady load
// traffic.
type loadQueue struct {
	head, tail *LoadIntent
	free       *LoadIntent
}

func (q *loadQueue) alloc() *LoadIntent {
	if q.free != nil {
		li := q.free
		q.free = li.next
		li.next, li.object, li.filter, li.done = nil, nil, "", nil
		return li
	}
	return &LoadIntent{}
}

func (q *loadQueue) push(li *LoadIntent) {
	li.next = nil
	if q.tail == nil {
		q.head, q.tail = li, li
		return
	}
	q.tail.next = li
	q.tail = li
}

func (q *loadQueue) dequeue() *LoadIntent {
	li := q.head
	if li == nil {
		return nil
	}
	q.head = li.next
	if q.head == nil {
		q.tail = nil
	}
	return li
}

func (q *loadQueue) recycle(li *LoadIntent) {
	li.next = q.free
	q.free = li
}

func (q *loadQueue) empty() bool { return q.head == nil }

// due reports whether a save's deadline has passed.
func due(deadline time.Time) bool { return !deadline.After(time.Now()) }
