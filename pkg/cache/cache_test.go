package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("key1", "value1", 1*time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := New()
	c.Set("key1", "value1", 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Set("key1", "value1", 1*time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Set("signed:files/a", "url-a", 1*time.Second)
	c.Set("signed:files/b", "url-b", 1*time.Second)
	c.Set("registry:federal", "src", 1*time.Second)
	c.Invalidate("signed:")
	_, ok1 := c.Get("signed:files/a")
	_, ok2 := c.Get("signed:files/b")
	_, ok3 := c.Get("registry:federal")
	if ok1 || ok2 {
		t.Fatalf("expected signed-url keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected registry:federal to still exist")
	}
}
