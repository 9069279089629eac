// Package listeners holds the observer registry shared by the event sources.
package listeners

// Registry is a listener set keyed by a monotonically increasing token.
// Listeners run in subscription order. Subscribing or unsubscribing from
// inside a listener takes effect from the next emitted event.
type Registry[T any] struct {
	next    uint64
	entries []entry[T]
}

type entry[T any] struct {
	token uint64
	fn    func(T)
}

// Add subscribes fn and returns its unsubscribe function. Unsubscribing twice is a no-op.
func (r *Registry[T]) Add(fn func(T)) func() {
	r.next++
	token := r.next
	// Force a copy so an in-flight dispatch keeps its own slice.
	r.entries = append(r.entries[:len(r.entries):len(r.entries)], entry[T]{token: token, fn: fn})
	return func() { r.remove(token) }
}

func (r *Registry[T]) remove(token uint64) {
	for i, e := range r.entries {
		if e.token != token {
			continue
		}
		entries := make([]entry[T], 0, len(r.entries)-1)
		entries = append(entries, r.entries[:i]...)
		r.entries = append(entries, r.entries[i+1:]...)
		return
	}
}

// Empty reports whether no listener is subscribed.
func (r *Registry[T]) Empty() bool {
	return len(r.entries) == 0
}

// Emit calls every listener with v.
func (r *Registry[T]) Emit(v T) {
	for _, e := range r.entries {
		e.fn(v)
	}
}
