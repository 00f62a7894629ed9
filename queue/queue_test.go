package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFOOrder(t *testing.T) {
	q, err := New[int]()
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.Push(3))

	require.NoError(t, q.Drain())
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, q.Drain())
	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.Equal(t, 1, q.Len())
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	q, err := New[string]()
	require.NoError(t, err)
	defer q.Close()

	_, ok := q.Pop()
	assert.False(t, ok)
}
