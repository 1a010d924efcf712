// Package event provides the ordered subscription list used for engine extension points.
package event

// Token identifies a subscription so it can be removed later. The zero Token is never issued.
type Token uint64

type observer[T any] struct {
	token   Token
	fn      func(T)
	once    bool
	removed bool
}

// Observable is an ordered list of subscribers notified synchronously with a value of type T.
// Observable is not safe for concurrent use; it belongs to the render thread.
type Observable[T any] struct {
	observers []*observer[T]
	next      Token
}

// Add subscribes fn and returns its token.
//
// Parameters:
//   - fn: the callback invoked on every Notify
//
// Returns:
//   - Token: the token to pass to Remove
func (o *Observable[T]) Add(fn func(T)) Token {
	return o.add(fn, false)
}

// AddOnce subscribes fn for the next Notify only.
//
// Parameters:
//   - fn: the callback invoked once
//
// Returns:
//   - Token: the token to pass to Remove
func (o *Observable[T]) AddOnce(fn func(T)) Token {
	return o.add(fn, true)
}

func (o *Observable[T]) add(fn func(T), once bool) Token {
	if fn == nil {
		return 0
	}
	o.next++
	o.observers = append(o.observers, &observer[T]{token: o.next, fn: fn, once: once})
	return o.next
}

// Remove cancels a subscription. Removing during Notify takes effect immediately for observers
// not yet called.
//
// Parameters:
//   - t: the subscription token
//
// Returns:
//   - bool: true if a subscription was removed
func (o *Observable[T]) Remove(t Token) bool {
	for i, ob := range o.observers {
		if ob.token == t {
			ob.removed = true
			o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Notify calls every subscriber in insertion order.
//
// Parameters:
//   - v: the value passed to each subscriber
func (o *Observable[T]) Notify(v T) {
	if len(o.observers) == 0 {
		return
	}
	snapshot := append([]*observer[T](nil), o.observers...)
	for _, ob := range snapshot {
		if ob.removed {
			continue
		}
		if ob.once {
			o.Remove(ob.token)
		}
		ob.fn(v)
	}
}

// Clear removes every subscriber.
func (o *Observable[T]) Clear() {
	for _, ob := range o.observers {
		ob.removed = true
	}
	o.observers = nil
}

// HasObservers reports whether any subscriber is registered.
func (o *Observable[T]) HasObservers() bool {
	return len(o.observers) > 0
}

// Len returns the number of subscribers.
func (o *Observable[T]) Len() int {
	return len(o.observers)
}
