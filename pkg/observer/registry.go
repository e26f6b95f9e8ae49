// Package observer is an in-process observer registry whose subscriptions are
// disposable handles.
package observer

import (
	"sync"
)

// Subscription is returned by Subscribe. Close detaches the listener and is
// safe to call more than once.
type Subscription interface {
	Close()
}

// Registry fans values of type T out to registered listeners, synchronously
// and in subscription order.
type Registry[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
	order     []uint64
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{listeners: make(map[uint64]func(T))}
}

// Subscribe registers fn until the returned handle is closed.
func (r *Registry[T]) Subscribe(fn func(T)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners[id] = fn
	r.order = append(r.order, id)

	return &handle[T]{registry: r, id: id}
}

// Notify delivers v to every listener registered at the time of the call.
// Listeners may subscribe or unsubscribe from inside a callback.
func (r *Registry[T]) Notify(v T) {
	r.mu.RLock()
	fns := make([]func(T), 0, len(r.order))
	for _, id := range r.order {
		if fn, ok := r.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of live listeners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listeners[id]; !ok {
		return
	}
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

type handle[T any] struct {
	registry *Registry[T]
	id       uint64
	once     sync.Once
}

func (h *handle[T]) Close() {
	h.once.Do(func() { h.registry.remove(h.id) })
}

// Func adapts a plain function to Subscription.
type Func func()

// Close calls f.
func (f Func) Close() {
	if f != nil {
		f()
	}
}
