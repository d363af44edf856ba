package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
	assert.Equal(t, []int{3, 4, 5}, b.Values())

	first, ok := b.First()
	assert.True(t, ok)
	assert.Equal(t, 3, first)

	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestBufferEmpty(t *testing.T) {
	b := New[float64](2)

	_, ok := b.First()
	assert.False(t, ok)
	_, ok = b.Last()
	assert.False(t, ok)
	assert.Empty(t, b.Values())
	assert.Empty(t, b.Tail(3))
}

func TestBufferTail(t *testing.T) {
	b := FromValues(4, []int{1, 2, 3, 4, 5, 6})

	assert.Equal(t, []int{3, 4, 5, 6}, b.Values())
	assert.Equal(t, []int{5, 6}, b.Tail(2))
	assert.Equal(t, []int{3, 4, 5, 6}, b.Tail(10))
}

func TestValuesIsCopy(t *testing.T) {
	b := FromValues(2, []int{1, 2})
	vals := b.Values()
	vals[0] = 99

	assert.Equal(t, 1, b.At(0))
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
