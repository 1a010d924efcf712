package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservableNotifyOrder(t *testing.T) {
	var o Observable[int]
	var got []string
	o.Add(func(v int) { got = append(got, "a") })
	o.Add(func(v int) { got = append(got, "b") })
	o.Notify(1)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.True(t, o.HasObservers())
}

func TestObservableRemove(t *testing.T) {
	var o Observable[int]
	calls := 0
	tok := o.Add(func(int) { calls++ })
	assert.True(t, o.Remove(tok))
	assert.False(t, o.Remove(tok))
	o.Notify(0)
	assert.Equal(t, 0, calls)
	assert.False(t, o.HasObservers())
}

func TestObservableAddOnce(t *testing.T) {
	var o Observable[string]
	calls := 0
	o.AddOnce(func(string) { calls++ })
	o.Notify("x")
	o.Notify("y")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, o.Len())
}

func TestObservableRemoveDuringNotify(t *testing.T) {
	var o Observable[int]
	var second Token
	calls := 0
	o.Add(func(int) { o.Remove(second) })
	second = o.Add(func(int) { calls++ })
	o.Notify(0)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, o.Len())
}

func TestObservableClearAndNil(t *testing.T) {
	var o Observable[int]
	assert.Equal(t, Token(0), o.Add(nil))
	o.Add(func(int) {})
	o.Clear()
	assert.False(t, o.HasObservers())
}
