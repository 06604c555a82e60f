// Package event provides typed observer lists: many listeners, fire-and-forget,
// no return values.
package event

type Bus[T any] struct {
	next      int
	listeners []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a func that removes it again.
func (b *Bus[T]) Subscribe(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	b.next++
	id := b.next
	b.listeners = append(b.listeners, listener[T]{id: id, fn: fn})
	return func() { b.unsubscribe(id) }
}

func (b *Bus[T]) unsubscribe(id int) {
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Emit calls every listener in subscription order. Listeners added or removed
// while emitting take effect on the next Emit.
func (b *Bus[T]) Emit(v T) {
	if len(b.listeners) == 0 {
		return
	}
	snapshot := b.listeners
	for _, l := range snapshot {
		l.fn(v)
	}
}

func (b *Bus[T]) Len() int { return len(b.listeners) }
