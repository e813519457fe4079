package flowscope_test

import (
	"testing"
	"time"

	"github.com/tmaes/flowscope"
)

func TestCache(t *testing.T) {
	t.Run("miss on empty cache", func(t *testing.T) {
		c := flowscope.NewCache()
		if _, ok := c.Get(flowscope.KindTransition, 1, []int64{1, 2}); ok {
			t.Error("Get() on empty cache reported a hit")
		}
	})

	t.Run("hit after set", func(t *testing.T) {
		c := flowscope.NewCache()
		c.Set(flowscope.KindTransition, 1, []int64{1, 2}, true)

		active, ok := c.Get(flowscope.KindTransition, 1, []int64{1, 2})
		if !ok || !active {
			t.Errorf("Get() = (%v, %v), want (true, true)", active, ok)
		}
	})

	t.Run("kinds are separate keys", func(t *testing.T) {
		c := flowscope.NewCache()
		c.Set(flowscope.KindTransition, 1, []int64{1}, true)

		if _, ok := c.Get(flowscope.KindPermission, 1, []int64{1}); ok {
			t.Error("permission lookup hit a transition entry")
		}
	})

	t.Run("role sets are separate keys", func(t *testing.T) {
		c := flowscope.NewCache()
		c.Set(flowscope.KindTransition, 1, []int64{1}, true)

		if _, ok := c.Get(flowscope.KindTransition, 1, []int64{1, 2}); ok {
			t.Error("different role set hit the cached entry")
		}
	})

	t.Run("role order does not matter", func(t *testing.T) {
		c := flowscope.NewCache()
		c.Set(flowscope.KindTransition, 1, []int64{2, 1, 3}, true)

		active, ok := c.Get(flowscope.KindTransition, 1, []int64{3, 2, 1})
		if !ok || !active {
			t.Errorf("Get() with permuted roles = (%v, %v), want (true, true)", active, ok)
		}
		if c.Size() != 1 {
			t.Errorf("Size() = %d, want 1", c.Size())
		}
	})

	t.Run("TTL expiry", func(t *testing.T) {
		c := flowscope.NewCache(flowscope.WithTTL(time.Nanosecond))
		c.Set(flowscope.KindTransition, 1, []int64{1}, true)

		time.Sleep(time.Millisecond)
		if _, ok := c.Get(flowscope.KindTransition, 1, []int64{1}); ok {
			t.Error("expired entry was returned")
		}
		if c.Size() != 0 {
			t.Errorf("Size() = %d after expiry, want 0", c.Size())
		}
	})

	t.Run("clear", func(t *testing.T) {
		c := flowscope.NewCache()
		c.Set(flowscope.KindTransition, 1, []int64{1}, true)
		c.Set(flowscope.KindPermission, 1, []int64{1}, false)
		c.Clear()

		if c.Size() != 0 {
			t.Errorf("Size() = %d after Clear(), want 0", c.Size())
		}
	})
}
