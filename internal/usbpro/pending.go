package usbpro

import "time"

// ParamsCallback receives the result of a parameters request.
type ParamsCallback func(ok bool, params Parameters)

// SerialCallback receives the result of a serial number request.
type SerialCallback func(ok bool, serial SerialNumber)

type pendingRequest[T any] struct {
	done     func(ok bool, v T)
	deadline time.Time
}

// pendingQueue is a strict FIFO of requests waiting for a reply. Replies
// carry no request id, so the oldest request always takes the next reply.
// Every pushed request is fired exactly once.
type pendingQueue[T any] struct {
	items []pendingRequest[T]
}

func (q *pendingQueue[T]) Len() int {
	return len(q.items)
}

// Push adds a request. A zero deadline never expires.
func (q *pendingQueue[T]) Push(done func(bool, T), deadline time.Time) {
	q.items = append(q.items, pendingRequest[T]{done: done, deadline: deadline})
}

// Pop removes the oldest request and fires it.
func (q *pendingQueue[T]) Pop(ok bool, v T) bool {
	if len(q.items) == 0 {
		return false
	}
	r := q.items[0]
	q.items[0] = pendingRequest[T]{}
	q.items = q.items[1:]
	r.fire(ok, v)
	return true
}

// PopBack removes the newest request and fires it with failure. Used when
// the request that was just pushed could not be sent.
func (q *pendingQueue[T]) PopBack() bool {
	if len(q.items) == 0 {
		return false
	}
	last := len(q.items) - 1
	r := q.items[last]
	q.items = q.items[:last]
	var zero T
	r.fire(false, zero)
	return true
}

// Expire fires with failure every request at the head of the queue whose
// deadline has passed. Later requests are never expired ahead of earlier
// ones.
func (q *pendingQueue[T]) Expire(now time.Time) int {
	n := 0
	var zero T
	for len(q.items) > 0 {
		d := q.items[0].deadline
		if d.IsZero() || now.Before(d) {
			break
		}
		q.Pop(false, zero)
		n++
	}
	return n
}

// Flush fires every request with failure in enqueue order.
func (q *pendingQueue[T]) Flush() int {
	n := 0
	var zero T
	for q.Pop(false, zero) {
		n++
	}
	q.items = nil
	return n
}

func (r pendingRequest[T]) fire(ok bool, v T) {
	if r.done != nil {
		r.done(ok, v)
	}
}
