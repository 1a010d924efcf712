// Package resource implements the handle-indexed arena used to own GPU-side objects.
// Every texture and effect the engine tracks lives in a Registry slot addressed by a
// generation-checked Handle; "dispose" means releasing the handle, never freeing memory
// behind a caller's back.
package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle is returned when a handle does not address a live slot, either because it
	// was never issued or because the slot has since been released and reused.
	ErrInvalidHandle = errors.New("resource: invalid handle")

	// ErrReleased is returned when operating on a handle whose reference count already reached zero.
	ErrReleased = errors.New("resource: handle already released")
)

// Handle addresses a slot in a Registry. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

// String returns a debug representation of the handle.
func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	refs       int
	live       bool
}

// Registry is an arena of reference-counted values addressed by Handle.
// Registry is not safe for concurrent use; it belongs to the render thread.
type Registry[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// NewRegistry creates an empty Registry.
//
// Returns:
//   - *Registry[T]: the new registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Insert stores v with a reference count of one and returns its handle.
//
// Parameters:
//   - v: the value to store
//
// Returns:
//   - Handle: the handle addressing the new slot
func (r *Registry[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot[T]{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.generation++
	s.value = v
	s.refs = 1
	s.live = true
	r.live++
	return Handle{index: idx, generation: s.generation}
}

func (r *Registry[T]) lookup(h Handle) (*slot[T], error) {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	s := &r.slots[h.index]
	if s.generation != h.generation {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	if !s.live {
		return nil, fmt.Errorf("%w: %s", ErrReleased, h)
	}
	return s, nil
}

// Get returns the value addressed by h.
//
// Parameters:
//   - h: the handle to resolve
//
// Returns:
//   - T: the stored value
//   - error: ErrInvalidHandle or ErrReleased if h is not live
func (r *Registry[T]) Get(h Handle) (T, error) {
	s, err := r.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the value addressed by h without touching its reference count.
//
// Parameters:
//   - h: the handle to update
//   - v: the new value
//
// Returns:
//   - error: ErrInvalidHandle or ErrReleased if h is not live
func (r *Registry[T]) Set(h Handle, v T) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

// Retain increments the reference count of h.
//
// Parameters:
//   - h: the handle to retain
//
// Returns:
//   - error: ErrInvalidHandle or ErrReleased if h is not live
func (r *Registry[T]) Retain(h Handle) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	s.refs++
	return nil
}

// Release decrements the reference count of h. When the count reaches zero the slot is freed,
// its generation is retired and the final value is returned so the caller can release the
// backing GPU object.
//
// Parameters:
//   - h: the handle to release
//
// Returns:
//   - T: the value that was removed (zero unless removed is true)
//   - bool: true if this call removed the slot
//   - error: ErrInvalidHandle or ErrReleased if h is not live
func (r *Registry[T]) Release(h Handle) (T, bool, error) {
	var zero T
	s, err := r.lookup(h)
	if err != nil {
		return zero, false, err
	}
	s.refs--
	if s.refs > 0 {
		return zero, false, nil
	}
	v := s.value
	s.value = zero
	s.live = false
	r.free = append(r.free, h.index)
	r.live--
	return v, true, nil
}

// RefCount returns the reference count of h, or 0 if h is not live.
func (r *Registry[T]) RefCount(h Handle) int {
	s, err := r.lookup(h)
	if err != nil {
		return 0
	}
	return s.refs
}

// Len returns the number of live slots.
func (r *Registry[T]) Len() int {
	return r.live
}

// Each calls fn for every live slot in index order. fn must not insert or release.
//
// Parameters:
//   - fn: the callback receiving each handle and value
func (r *Registry[T]) Each(fn func(h Handle, v T)) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.live {
			continue
		}
		fn(Handle{index: uint32(i), generation: s.generation}, s.value)
	}
}
