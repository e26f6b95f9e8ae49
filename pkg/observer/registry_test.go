package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifyInSubscriptionOrder(t *testing.T) {
	r := NewRegistry[string]()
	var got []string
	r.Subscribe(func(s string) { got = append(got, "a:"+s) })
	r.Subscribe(func(s string) { got = append(got, "b:"+s) })

	r.Notify("x")
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestCloseDetachesListener(t *testing.T) {
	r := NewRegistry[int]()
	calls := 0
	sub := r.Subscribe(func(int) { calls++ })

	r.Notify(1)
	sub.Close()
	sub.Close()
	r.Notify(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Len())
}

func TestUnsubscribeFromCallback(t *testing.T) {
	r := NewRegistry[int]()
	var sub Subscription
	calls := 0
	sub = r.Subscribe(func(int) {
		calls++
		sub.Close()
	})

	r.Notify(1)
	r.Notify(2)
	assert.Equal(t, 1, calls)
}

func TestFuncSubscription(t *testing.T) {
	closed := false
	Func(func() { closed = true }).Close()
	assert.True(t, closed)

	var nilFunc Func
	assert.NotPanics(t, nilFunc.Close)
}
