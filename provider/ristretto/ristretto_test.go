package ristretto

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/driver/kv"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(ForBytes(1<<20, 1000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestSetGetDelClear(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	if ok, err := p.Set(ctx, "k", []byte("v"), 0, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, hit, err := p.Get(ctx, "k")
	if err != nil || !hit || !bytes.Equal(b, []byte("v")) {
		t.Fatalf("Get: %q hit=%v err=%v", b, hit, err)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, hit, _ := p.Get(ctx, "k"); hit {
		t.Fatalf("hit after Del")
	}

	_, _ = p.Set(ctx, "a", []byte("1"), 0, 0)
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, hit, _ := p.Get(ctx, "a"); hit {
		t.Fatalf("hit after Clear")
	}
}

func TestBacksKVDriver(t *testing.T) {
	ctx := context.Background()
	d, err := kv.New(kv.Options{Provider: newProvider(t), Name: "ristretto"})
	if err != nil {
		t.Fatalf("kv.New: %v", err)
	}

	if !d.Set(ctx, driver.Item{Key: "k", Value: []byte("v"), TTL: time.Minute, Tags: []string{"t"}}) {
		t.Fatalf("Set failed")
	}
	e := d.Get(ctx, "k")
	if !bytes.Equal(e.Value, []byte("v")) || !slices.Equal(e.Tags, []string{"t"}) {
		t.Fatalf("Get: %+v", e)
	}
}
