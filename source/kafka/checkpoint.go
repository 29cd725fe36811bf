package kafka

import (
	"sync"
	"time"
)

type node[T any] struct {
	payload  T
	resolved bool
	next     *node[T]
}

// Tracker follows records handed out in consumption order and reports the
// highest one below which every record has been resolved. Records resolve
// in any order; the mark only advances over a contiguous prefix.
type Tracker[T any] struct {
	mu         sync.Mutex
	head, tail *node[T]
	pending    int

	every time.Duration
	last  time.Time
	now   func() time.Time
}

// NewTracker reports a commit as due at most once per commitEvery.
func NewTracker[T any](commitEvery time.Duration) *Tracker[T] {
	return &Tracker[T]{every: commitEvery, now: time.Now}
}

// Track registers p as the newest record. The returned resolve reports the
// current mark (ok is false while the oldest record is unresolved) and
// whether a commit is due. Calling resolve twice is a no-op.
func (t *Tracker[T]) Track(p T) (resolve func() (mark T, ok, commit bool)) {
	t.mu.Lock()
	n := &node[T]{payload: p}
	if t.tail != nil {
		t.tail.next = n
	} else {
		t.head = n
	}
	t.tail = n
	t.pending++
	t.mu.Unlock()

	return func() (T, bool, bool) {
		t.mu.Lock()
		defer t.mu.Unlock()
		var zero T
		if n.resolved {
			return zero, false, false
		}
		n.resolved = true
		t.pending--

		var mark T
		ok := false
		for t.head != nil && t.head.resolved {
			mark, ok = t.head.payload, true
			t.head = t.head.next
			if t.head == nil {
				t.tail = nil
			}
		}
		if !ok {
			return zero, false, false
		}
		now := t.now()
		due := !now.Before(t.last.Add(t.every))
		if due {
			t.last = now
		}
		return mark, true, due
	}
}

// Pending is the number of tracked records not yet resolved.
func (t *Tracker[T]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
