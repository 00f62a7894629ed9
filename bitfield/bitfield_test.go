package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetBit(t *testing.T) {
	b := New(17)
	assert.False(t, b.GetBit(0))
	b.SetBit(3, true)
	b.SetBit(16, true)
	assert.True(t, b.GetBit(3))
	assert.True(t, b.GetBit(16))
	assert.False(t, b.GetBit(4))
	b.SetBit(3, false)
	assert.False(t, b.GetBit(3))
}

func TestSetBitsRange(t *testing.T) {
	b := New(32)
	b.SetBits(8, 8, true)
	for i := 0; i < 32; i++ {
		want := i >= 8 && i < 16
		assert.Equalf(t, want, b.GetBit(i), "bit %d", i)
	}
}

func TestPopcountMatchesGetBit(t *testing.T) {
	b := New(50)
	set := map[int]bool{1: true, 2: true, 9: true, 48: true, 49: true}
	for i := range set {
		b.SetBit(i, true)
	}

	want := 0
	for i := 0; i < b.Len(); i++ {
		if b.GetBit(i) {
			want++
		}
	}
	assert.Equal(t, want, b.Popcount())
	assert.Equal(t, len(set), b.Popcount())
}

func TestFindNext1Increasing(t *testing.T) {
	b := New(40)
	want := []int{2, 5, 6, 31, 39}
	for _, i := range want {
		b.SetBit(i, true)
	}

	var got []int
	cursor := 0
	for b.FindNext1(&cursor) {
		got = append(got, cursor)
		cursor++
	}
	require.Equal(t, want, got)
}

func TestAndOrNot(t *testing.T) {
	a := New(8)
	b := New(8)
	a.SetBits(0, 4, true)  // 00001111
	b.SetBits(2, 4, true)  // 00111100

	and := a.And(b)
	or := a.Or(b)
	not := a.Not()

	for i := 0; i < 8; i++ {
		assert.Equal(t, a.GetBit(i) && b.GetBit(i), and.GetBit(i), "and bit %d", i)
		assert.Equal(t, a.GetBit(i) || b.GetBit(i), or.GetBit(i), "or bit %d", i)
		assert.Equal(t, !a.GetBit(i), not.GetBit(i), "not bit %d", i)
	}
}

func TestAndMinLength(t *testing.T) {
	a := New(16)
	b := New(8)
	a.SetBits(0, 16, true)
	b.SetBits(0, 8, true)

	and := a.And(b)
	assert.Equal(t, 8, and.Len())
}

func TestBufferResizePreservesPrefix(t *testing.T) {
	buf := NewBuffer(4)
	copy(buf.Bytes(), []byte{1, 2, 3, 4})

	buf.Resize(8)
	require.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, buf.Bytes())

	buf.Resize(2)
	require.Equal(t, []byte{1, 2}, buf.Bytes())
}
