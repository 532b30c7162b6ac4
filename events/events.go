// Package events implements the completion channel that lets a caller suspend until a motor or
// drive base finishes its current maneuver.
//
// Every key holds at most one waiter. Firing a key releases and forgets its waiter; firing a key
// nobody waits on does nothing.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/samber/lo"
)

// Kind distinguishes the sources of completion events.
type Kind int

// The completion sources, in firing order.
const (
	KindMotor Kind = iota
	KindDriveBase
)

// Key identifies one completion event.
type Key struct {
	Kind  Kind
	Index int
}

// MotorDone returns the key of the completion event for the motor on the given port number.
func MotorDone(port int) Key {
	return Key{Kind: KindMotor, Index: port}
}

// DriveBaseDone returns the key of the completion event for the drive base with the given index.
func DriveBaseDone(index int) Key {
	return Key{Kind: KindDriveBase, Index: index}
}

func (k Key) String() string {
	switch k.Kind {
	case KindMotor:
		return fmt.Sprintf("motor_%c_done", 'A'+rune(k.Index))
	case KindDriveBase:
		return fmt.Sprintf("drivebase_%d_done", k.Index)
	default:
		return fmt.Sprintf("unknown_%d_%d", k.Kind, k.Index)
	}
}

// less orders motors before drive bases, then by index.
func (k Key) less(other Key) bool {
	if k.Kind != other.Kind {
		return k.Kind < other.Kind
	}
	return k.Index < other.Index
}

// A Waiter is a one-shot handle resolved when its key fires.
type Waiter struct {
	key  Key
	bus  *Bus
	once sync.Once
	done chan struct{}
}

// Key returns the event this waiter is registered on.
func (w *Waiter) Key() Key {
	return w.key
}

// Done returns a channel closed once the waiter resolves.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Resolved reports whether the waiter has already been released.
func (w *Waiter) Resolved() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the event fires or ctx is done. A cancelled waiter is unregistered.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.bus.unregister(w)
		return ctx.Err()
	}
}

func (w *Waiter) resolve() {
	w.once.Do(func() { close(w.done) })
}

// Bus maps each key to its single pending waiter.
type Bus struct {
	mu       sync.Mutex
	waiters  map[Key]*Waiter
	batching int
	pending  []release
	observer func(key Key, released bool)
	logger   golog.Logger
}

// release is a fire whose waiter was claimed when it happened.
type release struct {
	key    Key
	waiter *Waiter
}

// NewBus returns an empty bus.
func NewBus(logger golog.Logger) *Bus {
	return &Bus{
		waiters: map[Key]*Waiter{},
		logger:  logger,
	}
}

// SetObserver installs fn to be called after every non-deferred fire, whether or not a waiter
// was released. Passing nil removes the observer.
func (b *Bus) SetObserver(fn func(key Key, released bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = fn
}

// Register installs a new waiter for key. A waiter already registered for the same key belongs
// to a command that has been overwritten, so it is resolved first.
func (b *Bus) Register(key Key) *Waiter {
	w := &Waiter{key: key, bus: b, done: make(chan struct{})}

	b.mu.Lock()
	old := b.waiters[key]
	b.waiters[key] = w
	b.mu.Unlock()

	if old != nil {
		b.logger.Debugw("superseding pending waiter", "event", key.String())
		old.resolve()
	}
	return w
}

// Await registers on key and blocks until it fires or ctx is done.
func (b *Bus) Await(ctx context.Context, key Key) error {
	return b.Register(key).Wait(ctx)
}

// Pending reports whether a waiter is registered for key.
func (b *Bus) Pending(key Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.waiters[key]
	return ok
}

// Take unregisters and returns the waiter for key, or nil. Devices take the waiter of a finished
// command while still holding their own lock so that a command issued right after cannot have
// its waiter released by the old completion. The taken waiter is handed to Release.
func (b *Bus) Take(key Key) *Waiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.waiters[key]
	delete(b.waiters, key)
	return w
}

// Release resolves w, a waiter taken for key, and reports whether there was one. Inside a Batch
// the release is queued and the result is always false.
func (b *Bus) Release(key Key, w *Waiter) bool {
	b.mu.Lock()
	if b.batching > 0 {
		b.pending = append(b.pending, release{key: key, waiter: w})
		b.mu.Unlock()
		return false
	}
	observer := b.observer
	b.mu.Unlock()

	if w != nil {
		b.logger.Debugw("completion event fired", "event", key.String())
		w.resolve()
	}
	if observer != nil {
		observer(key, w != nil)
	}
	return w != nil
}

// Fire releases the waiter registered for key, if any, and reports whether one was released.
// The waiter is claimed immediately even inside a Batch, where only its release is deferred and
// the result is always false.
func (b *Bus) Fire(key Key) bool {
	return b.Release(key, b.Take(key))
}

// Batch runs fn with releases deferred. When fn returns, each fired key is released once,
// motors in port order before drive bases in index order. Batches may nest; only the outermost
// one flushes.
func (b *Bus) Batch(fn func()) {
	b.mu.Lock()
	b.batching++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.batching--
		if b.batching > 0 {
			b.mu.Unlock()
			return
		}
		queued := b.pending
		b.pending = nil
		b.mu.Unlock()

		b.flush(queued)
	}()
	fn()
}

// flush releases the queued waiters grouped by key, reporting each key once to the observer.
func (b *Bus) flush(queued []release) {
	byKey := lo.GroupBy(queued, func(r release) Key { return r.key })
	keys := lo.Keys(byKey)
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	b.mu.Lock()
	observer := b.observer
	b.mu.Unlock()

	for _, key := range keys {
		released := false
		for _, r := range byKey[key] {
			if r.waiter != nil {
				r.waiter.resolve()
				released = true
			}
		}
		if released {
			b.logger.Debugw("completion event fired", "event", key.String())
		}
		if observer != nil {
			observer(key, released)
		}
	}
}

// FireAll releases every registered waiter. It is used when simulation state is discarded so no
// caller stays suspended.
func (b *Bus) FireAll() {
	b.mu.Lock()
	keys := lo.Keys(b.waiters)
	b.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	for _, key := range keys {
		b.Fire(key)
	}
}

func (b *Bus) unregister(w *Waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiters[w.key] == w {
		delete(b.waiters, w.key)
	}
}
