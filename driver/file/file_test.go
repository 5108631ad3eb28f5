package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	billyutil "github.com/go-git/go-billy/v5/util"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
)

type retryRecorder struct {
	hooks.Nop
	retries  []int
	rejected int
	corrupt  int
}

func (r *retryRecorder) WriteRetry(_, _ string, attempt int, _ error) {
	r.retries = append(r.retries, attempt)
}
func (r *retryRecorder) WriteRejected(_, _ string)   { r.rejected++ }
func (r *retryRecorder) CorruptEntry(_, _, _ string) { r.corrupt++ }

var errDiskFull = errors.New("disk full")

// flakyFS fails the first failRenames renames.
type flakyFS struct {
	billy.Filesystem
	failRenames int
	renames     int
}

func (f *flakyFS) Rename(from, to string) error {
	f.renames++
	if f.renames <= f.failRenames {
		return errDiskFull
	}
	return f.Filesystem.Rename(from, to)
}

func newFile(t *testing.T, opts Options, now *time.Time) *Driver {
	t.Helper()
	if opts.Dir == "" && opts.FS == nil {
		opts.FS = memfs.New()
	}
	opts.Clock = func() time.Time { return *now }
	d, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { d.Close(context.Background()) })
	return d
}

func exists(t *testing.T, fsys billy.Filesystem, p string) bool {
	t.Helper()
	_, err := fsys.Stat(p)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Stat(%s) error = %v", p, err)
	}
	return err == nil
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() without Dir should fail")
	}
}

func TestNew_NotDirectory(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "test")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := New(Options{Dir: f.Name()}); err == nil {
		t.Error("New() with a file path should return error")
	}
}

func TestDriver_LocalDir(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	dir := t.TempDir()
	d := newFile(t, Options{Dir: dir}, &now)
	ctx := context.Background()

	if !d.Set(ctx, driver.Item{Key: "k", Value: []byte("v"), TTL: 0}) {
		t.Fatal("Set() = false")
	}
	if _, err := os.Stat(dir + "/" + d.path("k")); err != nil {
		t.Fatalf("record not on disk: %v", err)
	}
	if got := d.Get(ctx, "k"); string(got.Value) != "v" {
		t.Errorf("Get() = %q, want %q", got.Value, "v")
	}
}

func TestDriver_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		now := time.Unix(1_700_000_000, 0)
		d := newFile(t, Options{Compress: compress}, &now)
		ctx := context.Background()

		if !d.Set(ctx, driver.Item{Key: "k", Value: []byte("hello"), TTL: time.Minute, Tags: []string{"t"}}) {
			t.Fatalf("compress=%v: Set() = false", compress)
		}
		e := d.Get(ctx, "k")
		if string(e.Value) != "hello" || len(e.Tags) != 1 || e.Tags[0] != "t" {
			t.Errorf("compress=%v: Get() = %+v", compress, e)
		}
		if !e.Expiry.Equal(now.Add(time.Minute)) {
			t.Errorf("compress=%v: expiry = %v", compress, e.Expiry)
		}
	}
}

func TestDriver_ReadsPlainRecordsWhenCompressing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fsys := memfs.New()
	ctx := context.Background()

	plain := newFile(t, Options{FS: fsys}, &now)
	plain.Set(ctx, driver.Item{Key: "k", Value: []byte("v"), TTL: 0})

	zd := newFile(t, Options{FS: fsys, Compress: true}, &now)
	if got := zd.Get(ctx, "k"); string(got.Value) != "v" {
		t.Errorf("Get() = %q, want %q", got.Value, "v")
	}
}

func TestDriver_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := newFile(t, Options{DefaultTTL: time.Hour}, &now)
	ctx := context.Background()

	d.Set(ctx, driver.Item{Key: "never", Value: []byte("v"), TTL: 0})
	d.Set(ctx, driver.Item{Key: "default", Value: []byte("v"), TTL: driver.DefaultTTL})
	d.Set(ctx, driver.Item{Key: "short", Value: []byte("v"), TTL: time.Second})

	now = now.Add(2 * time.Second)
	if d.Has(ctx, "short") {
		t.Error("short-lived record should have expired")
	}
	if exists(t, d.fs, d.path("short")) {
		t.Error("expired record file should be removed on read")
	}
	if !d.Has(ctx, "default") {
		t.Error("default TTL record expired too early")
	}

	now = now.Add(5 * 365 * 24 * time.Hour)
	if !d.Has(ctx, "never") {
		t.Error("ttl=0 record must never expire")
	}
	if d.Has(ctx, "default") {
		t.Error("default TTL record should have expired")
	}

	d.Set(ctx, driver.Item{Key: "never", Value: []byte("v"), TTL: -1})
	if d.Has(ctx, "never") {
		t.Error("negative TTL must delete")
	}
}

func TestDriver_CorruptRecordIsRemoved(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := &retryRecorder{}
	d := newFile(t, Options{Hooks: rec}, &now)
	ctx := context.Background()

	p := d.path("k")
	if err := billyutil.WriteFile(d.fs, p, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if d.Has(ctx, "k") {
		t.Error("corrupt record must read as miss")
	}
	if exists(t, d.fs, p) {
		t.Error("corrupt record file should be removed")
	}
	if rec.corrupt != 1 {
		t.Errorf("CorruptEntry calls = %d, want 1", rec.corrupt)
	}
}

func TestDriver_WriteRetriesThenSucceeds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := &retryRecorder{}
	fsys := &flakyFS{Filesystem: memfs.New(), failRenames: 2}
	d := newFile(t, Options{FS: fsys, Hooks: rec}, &now)
	ctx := context.Background()

	if !d.Set(ctx, driver.Item{Key: "k", Value: []byte("v")}) {
		t.Fatal("Set() should succeed on the third attempt")
	}
	if len(rec.retries) != 2 || rec.retries[1] != 2 {
		t.Errorf("retries = %v, want [1 2]", rec.retries)
	}
	if rec.rejected != 0 {
		t.Errorf("WriteRejected calls = %d, want 0", rec.rejected)
	}
	if got := d.Get(ctx, "k"); string(got.Value) != "v" {
		t.Errorf("Get() = %q, want %q", got.Value, "v")
	}
}

func TestDriver_WriteRetriesExhausted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := &retryRecorder{}
	fsys := &flakyFS{Filesystem: memfs.New(), failRenames: 100}
	d := newFile(t, Options{FS: fsys, Hooks: rec}, &now)
	ctx := context.Background()

	if d.Set(ctx, driver.Item{Key: "k", Value: []byte("v")}) {
		t.Fatal("Set() should fail when every rename fails")
	}
	if len(rec.retries) != 3 || rec.retries[2] != 3 {
		t.Errorf("retries = %v, want [1 2 3]", rec.retries)
	}
	if rec.rejected != 1 {
		t.Errorf("WriteRejected calls = %d, want 1", rec.rejected)
	}
	files, err := fsys.ReadDir(fsys.Join(d.path("k"), ".."))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("failed writes left %d temp files", len(files))
	}
}

func TestDriver_DeleteIsIdempotent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := newFile(t, Options{}, &now)
	ctx := context.Background()

	d.Set(ctx, driver.Item{Key: "k", Value: []byte("v")})
	if !d.Delete(ctx, "k") || !d.Delete(ctx, "k") {
		t.Error("Delete() should succeed twice")
	}
}

func TestDriver_PurgeAndClear(t *testing.T) {
	// memfs stamps files with the wall clock
	now := time.Now()
	d := newFile(t, Options{}, &now)
	ctx := context.Background()

	d.Set(ctx, driver.Item{Key: "live", Value: []byte("v"), TTL: 0})
	d.Set(ctx, driver.Item{Key: "dead", Value: []byte("v"), TTL: time.Second})

	stale := d.fs.Join(d.fs.Join(d.path("live"), ".."), tmpPrefix+"abandoned")
	if err := billyutil.WriteFile(d.fs, stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Hour)
	if !d.Purge(ctx) {
		t.Fatal("Purge() = false")
	}
	if exists(t, d.fs, d.path("dead")) {
		t.Error("Purge() kept an expired record")
	}
	if exists(t, d.fs, stale) {
		t.Error("Purge() kept an abandoned temp file")
	}
	if !d.Has(ctx, "live") {
		t.Error("Purge() removed a live record")
	}

	if !d.Clear(ctx) {
		t.Fatal("Clear() = false")
	}
	entries, _ := d.fs.ReadDir(".")
	if len(entries) != 0 {
		t.Errorf("Clear() left %d entries", len(entries))
	}
}

func TestDriver_GetMany(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := newFile(t, Options{}, &now)
	ctx := context.Background()

	d.SetMany(ctx, []driver.Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	})
	got := d.GetMany(ctx, []string{"a", "b", "c"})
	if len(got) != 2 || string(got["a"].Value) != "1" || string(got["b"].Value) != "2" {
		t.Errorf("GetMany() = %v", got)
	}
	if !d.DeleteMany(ctx, []string{"a", "b"}) || d.Has(ctx, "a") {
		t.Error("DeleteMany() left keys behind")
	}
}
