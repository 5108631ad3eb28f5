package driver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEntryIsHit(t *testing.T) {
	now := time.Unix(1000, 0)
	cases := []struct {
		name string
		e    Entry
		want bool
	}{
		{"zero", Entry{}, false},
		{"nil value", Entry{Key: "k"}, false},
		{"never expires", Entry{Value: []byte("v")}, true},
		{"future", Entry{Value: []byte("v"), Expiry: now.Add(time.Second)}, true},
		{"exactly now", Entry{Value: []byte("v"), Expiry: now}, false},
		{"past", Entry{Value: []byte("v"), Expiry: now.Add(-time.Second)}, false},
		{"empty value is a value", Entry{Value: []byte{}}, true},
	}
	for _, tc := range cases {
		if got := tc.e.IsHit(now); got != tc.want {
			t.Fatalf("%s: IsHit=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestEntryRemaining(t *testing.T) {
	now := time.Unix(1000, 0)
	if r := (Entry{}).Remaining(now); r != 0 {
		t.Fatalf("never-expiring remaining=%v want 0", r)
	}
	if r := (Entry{Expiry: now.Add(5 * time.Second)}).Remaining(now); r != 5*time.Second {
		t.Fatalf("remaining=%v want 5s", r)
	}
	if r := (Entry{Expiry: now}).Remaining(now); r >= 0 {
		t.Fatalf("expired remaining=%v want negative", r)
	}
}

func TestExpiryFor(t *testing.T) {
	now := time.Unix(1000, 0)
	if !ExpiryFor(now, 0, time.Hour).IsZero() {
		t.Fatalf("ttl=0 must never expire")
	}
	if got := ExpiryFor(now, DefaultTTL, time.Hour); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("default ttl expiry=%v", got)
	}
	if !ExpiryFor(now, DefaultTTL, 0).IsZero() {
		t.Fatalf("default of 0 must never expire")
	}
	if got := ExpiryFor(now, time.Minute, time.Hour); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("explicit ttl expiry=%v", got)
	}
}

func TestItemIsDelete(t *testing.T) {
	if !(Item{Key: "k", Value: []byte("v"), TTL: -1}).IsDelete() {
		t.Fatalf("negative ttl must delete")
	}
	if !(Item{Key: "k"}).IsDelete() {
		t.Fatalf("nil value must delete")
	}
	if (Item{Key: "k", Value: []byte("v"), TTL: DefaultTTL}).IsDelete() {
		t.Fatalf("default ttl must not delete")
	}
}

func TestValidateKey(t *testing.T) {
	for _, bad := range []string{"", "a{b", "a}b", "a(b", "a)b", "a/b", `a\b`, "a@b", "user:1", strings.Repeat("x", MaxKeyLen+1)} {
		err := ValidateKey(bad)
		if err == nil {
			t.Fatalf("expected error for %q", bad)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ValidationError/ErrInvalidKey for %q, got %v", bad, err)
		}
	}
	for _, good := range []string{"a", "user.1", "user-1_x", "ünï"} {
		if err := ValidateKey(good); err != nil {
			t.Fatalf("unexpected error for %q: %v", good, err)
		}
	}
}

func TestValidateKeyRejectsReserved(t *testing.T) {
	for _, k := range []string{NamespaceVersionKey("app"), TagKeysKey("t"), KeyTagsKey("k"), TagOrphansKey, KeyOrphansKey} {
		if err := ValidateKey(k); !errors.Is(err, ErrReservedKey) {
			t.Fatalf("expected ErrReservedKey for %q, got %v", k, err)
		}
	}
}

func TestValidateTagAndNamespace(t *testing.T) {
	if err := ValidateTag("a:b"); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	if err := ValidateNamespace(""); err != nil {
		t.Fatalf("empty namespace is valid, got %v", err)
	}
	if err := ValidateNamespace("a@b"); !errors.Is(err, ErrInvalidNamespace) {
		t.Fatalf("expected ErrInvalidNamespace, got %v", err)
	}
}

func TestConfigErrorIsErrConfig(t *testing.T) {
	err := error(&ConfigError{Component: "chain", Reason: "empty"})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("ConfigError must match ErrConfig")
	}
}

type countingDriver struct {
	Driver
	gets map[string]int
	fail map[string]bool
}

func (d *countingDriver) Get(_ context.Context, key string) Entry {
	d.gets[key]++
	if key == "miss" {
		return Entry{}
	}
	return Entry{Key: key, Value: []byte(key)}
}

func (d *countingDriver) Set(_ context.Context, it Item) bool { return !d.fail[it.Key] }
func (d *countingDriver) Delete(_ context.Context, key string) bool {
	return !d.fail[key]
}

func TestSequentialHelpers(t *testing.T) {
	ctx := context.Background()
	d := &countingDriver{gets: map[string]int{}, fail: map[string]bool{"bad": true}}

	got := SequentialGetMany(ctx, d, []string{"a", "miss", "a", "b"})
	if len(got) != 2 || got["a"].Value == nil || got["b"].Value == nil {
		t.Fatalf("unexpected GetMany result: %v", got)
	}
	if d.gets["a"] != 1 {
		t.Fatalf("duplicate key fetched %d times", d.gets["a"])
	}

	if SequentialSetMany(ctx, d, []Item{{Key: "a"}, {Key: "bad"}}) {
		t.Fatalf("SetMany must report a failed item")
	}
	if !SequentialDeleteMany(ctx, d, []string{"a", "b"}) {
		t.Fatalf("DeleteMany should succeed")
	}
	if SequentialDeleteMany(ctx, d, []string{"bad", "a"}) {
		t.Fatalf("DeleteMany must report a failed key")
	}
}
