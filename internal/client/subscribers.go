package client

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// registry is a publish/subscribe list of handlers. Publish calls every
// handler in subscription order; a panicking handler is logged and does not
// stop delivery to the others.
type registry[T any] struct {
	name string
	log  *zerolog.Logger

	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(T)
}

func newRegistry[T any](name string, log *zerolog.Logger) *registry[T] {
	return &registry[T]{name: name, log: log, handlers: make(map[uint64]func(T))}
}

// subscribe adds fn and returns its disposer. Calling the disposer more
// than once is harmless.
func (r *registry[T]) subscribe(fn func(T)) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.handlers[id] = fn
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers, id)
			r.mu.Unlock()
		})
	}
}

func (r *registry[T]) publish(v T) {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.handlers[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		r.call(fn, v)
	}
}

func (r *registry[T]) call(fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("registry", r.name).
				Str("panic", fmt.Sprint(rec)).
				Msg("subscriber panicked")
		}
	}()
	fn(v)
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
