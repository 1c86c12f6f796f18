// Package mpsc implements the loose-bounded multi-producer channel family
// the FSM runtime uses for mailboxes: an unbounded or bounded channel with a
// sender-closed flag independent of the channel's own disconnection, plus a
// LooseBoundedSender variant that samples queue length every CHECK_INTERVAL
// attempts instead of checking it on every send.
package mpsc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// checkInterval is how often LooseBoundedSender.TrySend actually inspects
// the queue length instead of forwarding blind.
const checkInterval = 8

var (
	// ErrDisconnected is returned when the receiver has been dropped or the
	// sender side has been explicitly closed.
	ErrDisconnected = errors.New("mpsc: disconnected")
	// ErrFull is returned by TrySend when the loose bound has been reached.
	ErrFull = errors.New("mpsc: full")
	// ErrTimeout is returned by Receiver.RecvTimeout when no value arrives
	// in time.
	ErrTimeout = errors.New("mpsc: recv timeout")
)

// state is shared between every Sender clone and the Receiver of one
// channel. connected tracks whether any sender is still willing to send;
// it is distinct from the underlying queue being closed, which would panic
// on a second close in the native-channel case.
type state struct {
	senderCnt atomic.Int64
	connected atomic.Bool
}

func newState() *state {
	s := &state{}
	s.senderCnt.Store(1)
	s.connected.Store(true)
	return s
}

func (s *state) isSenderConnected() bool {
	return s.connected.Load()
}

// queue is the storage backing a Sender/Receiver pair. push must never
// block for the unbounded case and may block for the bounded (hard
// capacity) case; everything else behaves identically between the two.
type queue[T any] interface {
	push(v T)
	tryPush(v T) bool
	pop() T
	tryPop() (T, bool)
	popTimeout(d time.Duration) (T, bool)
	len() int
}

// unboundedQueue is a mutex-guarded slice with a capacity-1 wakeup channel:
// push always appends and returns immediately (crossbeam's unbounded
// channel never blocks a sender on capacity), pop blocks until something is
// queued. This replaces a zero-capacity native Go channel, which is a
// synchronous rendezvous, not a queue — a blind `make(chan T, 0)` here made
// every send wait for a receiver to already be parked in a recv at that
// exact instant, deadlocking the enqueue-then-schedule-if-idle handoff
// every mailbox send depends on.
type unboundedQueue[T any] struct {
	mu     sync.Mutex
	buf    []T
	notify chan struct{}
}

func newUnboundedQueue[T any]() *unboundedQueue[T] {
	return &unboundedQueue[T]{notify: make(chan struct{}, 1)}
}

func (q *unboundedQueue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *unboundedQueue[T]) push(v T) {
	q.mu.Lock()
	q.buf = append(q.buf, v)
	q.mu.Unlock()
	q.wake()
}

func (q *unboundedQueue[T]) tryPush(v T) bool {
	q.push(v)
	return true
}

func (q *unboundedQueue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		var zero T
		return zero, false
	}
	v := q.buf[0]
	q.buf[0] = *new(T)
	q.buf = q.buf[1:]
	return v, true
}

func (q *unboundedQueue[T]) pop() T {
	for {
		if v, ok := q.tryPop(); ok {
			return v
		}
		<-q.notify
	}
}

func (q *unboundedQueue[T]) popTimeout(d time.Duration) (T, bool) {
	if v, ok := q.tryPop(); ok {
		return v, true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.notify:
		if v, ok := q.tryPop(); ok {
			return v, true
		}
		var zero T
		return zero, false
	case <-timer.C:
		var zero T
		return zero, false
	}
}

func (q *unboundedQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// channelQueue wraps a real buffered Go channel, used for Bounded: a
// genuine hard capacity where push blocking once full is the desired
// behaviour (matching crossbeam's bounded channel), not a bug.
type channelQueue[T any] struct {
	ch chan T
}

func newChannelQueue[T any](capacity int) *channelQueue[T] {
	return &channelQueue[T]{ch: make(chan T, capacity)}
}

func (q *channelQueue[T]) push(v T) { q.ch <- v }

func (q *channelQueue[T]) tryPush(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

func (q *channelQueue[T]) pop() T { return <-q.ch }

func (q *channelQueue[T]) tryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *channelQueue[T]) popTimeout(d time.Duration) (T, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

func (q *channelQueue[T]) len() int { return len(q.ch) }

// Sender is the plain MPMC sender half: blocking Send, non-blocking TrySend,
// explicit Close, and Clone for additional producers.
type Sender[T any] struct {
	q     queue[T]
	state *state
}

// Unbounded returns a Sender/Receiver pair backed by an unbounded queue:
// Send/TrySend never block on capacity, only on disconnection checks.
func Unbounded[T any]() (*Sender[T], *Receiver[T]) {
	st := newState()
	q := newUnboundedQueue[T]()
	return &Sender[T]{q: q, state: st}, &Receiver[T]{q: q, state: st}
}

// Bounded returns a Sender/Receiver pair backed by a channel of the given
// hard capacity, where Send legitimately blocks once that capacity is
// reached.
func Bounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	st := newState()
	q := newChannelQueue[T](capacity)
	return &Sender[T]{q: q, state: st}, &Receiver[T]{q: q, state: st}
}

// Len reports the number of values currently queued.
func (s *Sender[T]) Len() int { return s.q.len() }

// IsEmpty reports whether the queue currently holds no values.
func (s *Sender[T]) IsEmpty() bool { return s.q.len() == 0 }

// Send blocks until the value is delivered or the channel is disconnected.
// For an unbounded queue this only ever blocks on disconnection checking,
// never on capacity.
func (s *Sender[T]) Send(v T) error {
	if !s.state.isSenderConnected() {
		return ErrDisconnected
	}
	s.q.push(v)
	return nil
}

// TrySend attempts to enqueue without blocking.
func (s *Sender[T]) TrySend(v T) error {
	if !s.state.isSenderConnected() {
		return ErrDisconnected
	}
	if !s.q.tryPush(v) {
		return ErrFull
	}
	return nil
}

// CloseSender marks the sender side closed. Further Send/TrySend calls fail
// with ErrDisconnected. It does not close the underlying queue, so
// in-flight receives continue to drain whatever was already queued.
func (s *Sender[T]) CloseSender() {
	s.state.connected.Store(false)
}

// IsSenderConnected reports whether this sender (or any of its clones) is
// still accepting sends.
func (s *Sender[T]) IsSenderConnected() bool { return s.state.isSenderConnected() }

// Clone returns an additional producer handle sharing the same queue and
// closed state.
func (s *Sender[T]) Clone() *Sender[T] {
	s.state.senderCnt.Add(1)
	return &Sender[T]{q: s.q, state: s.state}
}

// Release drops this sender handle. Once every clone has been released the
// channel is closed automatically, mirroring the Rust original's Drop impl
// (which counts down sender_cnt and closes on last drop). Go has no
// destructors, so callers that clone a Sender must call Release explicitly
// when done with a clone instead of relying on garbage collection.
func (s *Sender[T]) Release() {
	if s.state.senderCnt.Add(-1) == 0 {
		s.CloseSender()
	}
}

// Receiver is the consuming half of a channel.
type Receiver[T any] struct {
	q     queue[T]
	state *state
	once  sync.Once
}

// Len reports the number of values currently queued.
func (r *Receiver[T]) Len() int { return r.q.len() }

// IsEmpty reports whether the queue is currently empty.
func (r *Receiver[T]) IsEmpty() bool { return r.q.len() == 0 }

// Recv blocks until a value is available.
func (r *Receiver[T]) Recv() (T, error) {
	return r.q.pop(), nil
}

// TryRecv returns immediately with ErrTimeout if nothing is queued.
func (r *Receiver[T]) TryRecv() (T, error) {
	if v, ok := r.q.tryPop(); ok {
		return v, nil
	}
	var zero T
	return zero, ErrTimeout
}

// RecvTimeout blocks for at most timeout waiting for a value.
func (r *Receiver[T]) RecvTimeout(timeout time.Duration) (T, error) {
	if v, ok := r.q.popTimeout(timeout); ok {
		return v, nil
	}
	var zero T
	return zero, ErrTimeout
}

// Close marks the channel's sender side disconnected from the receiver
// perspective. Callers should invoke this once the receiver is no longer
// going to drain further values, matching the Rust original's Receiver Drop
// impl which sets the shared connected flag to false.
func (r *Receiver[T]) Close() {
	r.once.Do(func() {
		r.state.connected.Store(false)
	})
}

// LooseBoundedSender wraps an unbounded Sender with a soft capacity that is
// only sampled every checkInterval TrySend calls, trading strict admission
// control for lower overhead on the hot path. ForceSend always bypasses the
// cap entirely.
//
// triedCnt is accessed by a single owner at a time by construction (each
// BasicMailbox's sender is used by whichever goroutine currently holds the
// FSM, never concurrently), so it is a plain int64, not an atomic — matching
// the Rust original's Cell<usize>, which is likewise not Sync.
type LooseBoundedSender[T any] struct {
	sender   *Sender[T]
	triedCnt int64
	limit    int
}

// LooseBounded returns a LooseBoundedSender/Receiver pair. The sender itself
// wraps an unbounded queue; cap only gates TrySend's sampled check.
func LooseBounded[T any](capacity int) (*LooseBoundedSender[T], *Receiver[T]) {
	sender, receiver := Unbounded[T]()
	return &LooseBoundedSender[T]{sender: sender, limit: capacity}, receiver
}

// Len reports the number of values currently queued.
func (s *LooseBoundedSender[T]) Len() int { return s.sender.Len() }

// IsEmpty reports whether the queue is currently empty.
func (s *LooseBoundedSender[T]) IsEmpty() bool { return s.sender.IsEmpty() }

// ForceSend enqueues unconditionally, ignoring the soft cap.
func (s *LooseBoundedSender[T]) ForceSend(v T) error {
	s.triedCnt++
	return s.sender.Send(v)
}

// TrySend enqueues, consulting the queue length only once every
// checkInterval calls.
func (s *LooseBoundedSender[T]) TrySend(v T) error {
	cnt := s.triedCnt
	switch {
	case cnt < checkInterval:
		s.triedCnt = cnt + 1
	case s.Len() < s.limit:
		s.triedCnt = 1
	default:
		return ErrFull
	}

	if err := s.sender.Send(v); err != nil {
		return ErrDisconnected
	}
	return nil
}

// CloseSender marks the sender side closed.
func (s *LooseBoundedSender[T]) CloseSender() { s.sender.CloseSender() }

// IsSenderConnected reports whether this sender (or a clone) is still live.
func (s *LooseBoundedSender[T]) IsSenderConnected() bool { return s.sender.IsSenderConnected() }

// Clone returns an independent LooseBoundedSender sharing the underlying
// queue and closed state but with its own sampling counter, matching the
// Rust original's per-clone tried_cnt.
func (s *LooseBoundedSender[T]) Clone() *LooseBoundedSender[T] {
	return &LooseBoundedSender[T]{sender: s.sender.Clone(), limit: s.limit}
}
