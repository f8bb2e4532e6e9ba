package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("user-1:123456", struct{}{})

	if _, ok := c.Get("user-1:123456"); !ok {
		t.Fatalf("expected key to be present")
	}

	if _, ok := c.Get("user-1:654321"); ok {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(10 * time.Millisecond)

	c.Set("k", "v")

	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected key to have expired")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected deleted key to be absent")
	}

	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected cleared cache to be empty")
	}
}
