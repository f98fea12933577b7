// Package refresh coordinates refreshes of shared remote state
package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/folio/internal/common"
)

const flightKey = "fetch"

// FetchFunc loads a fresh value from the remote system
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Resource is a refreshable value shared by many readers.
//
// Concurrent Get calls share one in-flight fetch, and a value younger than
// the debounce window is returned without fetching. Completions publish in
// request order: a fetch that finishes after a newer one has published is
// dropped, and its callers receive the newer value.
type Resource[T any] struct {
	name     string
	fetch    FetchFunc[T]
	debounce time.Duration
	logger   *common.Logger
	now      func() time.Time

	group singleflight.Group
	seq   atomic.Uint64

	mu             sync.Mutex
	value          T
	has            bool
	fetchedAt      time.Time
	valid          bool
	publishedSeq   uint64
	invalidatedSeq uint64 // fetches at or below this seq started before the last Invalidate
	subs           map[uint64]chan T
	nextSub        uint64
}

// NewResource creates a resource backed by fetch
func NewResource[T any](name string, fetch FetchFunc[T], debounce time.Duration, logger *common.Logger) *Resource[T] {
	return &Resource[T]{
		name:     name,
		fetch:    fetch,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
		subs:     make(map[uint64]chan T),
	}
}

// Peek returns the last published value without fetching
func (r *Resource[T]) Peek() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.has
}

// Get returns a value no older than the debounce window, fetching if needed.
// Cancelling ctx abandons the wait but not the shared fetch.
func (r *Resource[T]) Get(ctx context.Context) (T, error) {
	r.mu.Lock()
	if r.has && r.valid && r.now().Sub(r.fetchedAt) < r.debounce {
		v := r.value
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	ch := r.group.DoChan(flightKey, func() (interface{}, error) {
		return r.run(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// run performs one fetch and publishes it unless a newer fetch already has.
func (r *Resource[T]) run(ctx context.Context) (T, error) {
	seq := r.seq.Add(1)
	v, err := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq < r.publishedSeq {
		r.logger.Debug().Str("resource", r.name).Uint64("seq", seq).Uint64("published", r.publishedSeq).
			Msg("Dropping superseded completion")
		return r.value, nil
	}
	if err != nil {
		r.logger.Debug().Str("resource", r.name).Uint64("seq", seq).Err(err).Msg("Fetch failed")
		var zero T
		return zero, err
	}

	// A fetch that started before Invalidate may hold pre-write data: publish
	// it, but do not let it satisfy Get from the debounce window.
	r.value = v
	r.has = true
	r.valid = seq > r.invalidatedSeq
	r.fetchedAt = r.now()
	r.publishedSeq = seq
	for _, sub := range r.subs {
		offer(sub, v)
	}
	return v, nil
}

// Invalidate discards the cached value and detaches any in-flight fetch, so
// the next Get starts a new one.
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.invalidatedSeq = r.seq.Load()
	r.mu.Unlock()
	r.group.Forget(flightKey)
}

// Subscribe returns a channel that always holds the latest published value.
// Slow readers skip intermediate values. The returned func unsubscribes and
// closes the channel.
func (r *Resource[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	if r.has {
		ch <- r.value
	}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			close(ch)
			r.mu.Unlock()
		})
	}
}

// offer replaces whatever is buffered in ch with v. Callers hold the lock, so
// ch has no other writer.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
