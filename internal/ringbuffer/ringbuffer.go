// Package ringbuffer provides a fixed-capacity FIFO used for bounded
// performance histories. Appending to a full buffer evicts the oldest value.
package ringbuffer

import "fmt"

// Buffer is a fixed-capacity queue. The zero value is not usable; construct
// buffers with New.
type Buffer[T any] struct {
	data  []T
	start int
	size  int
}

// New returns an empty buffer holding at most capacity values.
// It panics when capacity is not positive since that is a programming error.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ringbuffer: capacity must be positive, got %d", capacity))
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// FromValues builds a buffer of the given capacity and pushes values in order.
// When len(values) exceeds capacity only the newest values are retained.
func FromValues[T any](capacity int, values []T) *Buffer[T] {
	b := New[T](capacity)
	for _, v := range values {
		b.Push(v)
	}
	return b
}

// Push appends v, evicting the oldest value when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	capacity := len(b.data)
	if b.size < capacity {
		b.data[(b.start+b.size)%capacity] = v
		b.size++
		return
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % capacity
}

// Len reports the number of stored values.
func (b *Buffer[T]) Len() int { return b.size }

// Cap reports the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// At returns the i-th value, oldest first. It panics when i is out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("ringbuffer: index %d out of range [0,%d)", i, b.size))
	}
	return b.data[(b.start+i)%len(b.data)]
}

// First returns the oldest value and false when the buffer is empty.
func (b *Buffer[T]) First() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(0), true
}

// Last returns the newest value and false when the buffer is empty.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(b.size - 1), true
}

// Values returns a copy of the stored values, oldest first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.At(i)
	}
	return out
}

// Tail returns a copy of the newest n values, oldest first. If n exceeds Len
// all values are returned.
func (b *Buffer[T]) Tail(n int) []T {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	offset := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.At(offset + i)
	}
	return out
}
