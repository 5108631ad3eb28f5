package driver

import "context"

// SequentialGetMany applies d.Get per key. Drivers without a bulk primitive
// implement GetMany with it.
func SequentialGetMany(ctx context.Context, d Driver, keys []string) map[string]Entry {
	out := make(map[string]Entry, len(keys))
	for _, k := range keys {
		if _, seen := out[k]; seen {
			continue
		}
		if e := d.Get(ctx, k); e.Value != nil {
			out[k] = e
		}
	}
	return out
}

// SequentialSetMany applies d.Set per item. Every item is attempted.
func SequentialSetMany(ctx context.Context, d Driver, items []Item) bool {
	ok := true
	for _, it := range items {
		if !d.Set(ctx, it) {
			ok = false
		}
	}
	return ok
}

// SequentialDeleteMany applies d.Delete per key. Every key is attempted.
func SequentialDeleteMany(ctx context.Context, d Driver, keys []string) bool {
	ok := true
	for _, k := range keys {
		if !d.Delete(ctx, k) {
			ok = false
		}
	}
	return ok
}

// Root follows Wrapper links down to the innermost driver.
func Root(d Driver) Driver {
	for {
		w, ok := d.(Wrapper)
		if !ok {
			return d
		}
		inner := w.Unwrap()
		if inner == nil {
			return d
		}
		d = inner
	}
}
