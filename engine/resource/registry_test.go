package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertGet(t *testing.T) {
	r := NewRegistry[string]()
	a := r.Insert("a")
	b := r.Insert("b")

	v, err := r.Get(a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = r.Get(b)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryZeroHandleInvalid(t *testing.T) {
	r := NewRegistry[int]()
	_, err := r.Get(Handle{})
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistryReleaseAtZero(t *testing.T) {
	r := NewRegistry[int]()
	h := r.Insert(7)
	require.NoError(t, r.Retain(h))
	assert.Equal(t, 2, r.RefCount(h))

	_, removed, err := r.Release(h)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, r.Len())

	v, removed, err := r.Release(h)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 7, v)
	assert.Equal(t, 0, r.Len())

	_, _, err = r.Release(h)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestRegistryStaleHandleAfterReuse(t *testing.T) {
	r := NewRegistry[int]()
	old := r.Insert(1)
	_, _, err := r.Release(old)
	require.NoError(t, err)

	fresh := r.Insert(2)
	assert.NotEqual(t, old, fresh)

	_, err = r.Get(old)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	v, err := r.Get(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestRegistryEach(t *testing.T) {
	r := NewRegistry[int]()
	r.Insert(1)
	h := r.Insert(2)
	r.Insert(3)
	_, _, err := r.Release(h)
	require.NoError(t, err)

	var seen []int
	r.Each(func(_ Handle, v int) { seen = append(seen, v) })
	assert.Equal(t, []int{1, 3}, seen)
}
