// Package file implements a driver that keeps one record file per key.
//
// Records live under <h[:2]>/<h>.cache of a billy filesystem, where h is the
// hex SHA-256 of the key. The filesystem is the local directory Dir unless
// Options.FS supplies another one. Writes go to a temp file in the same
// directory and are renamed into place, so readers never observe a partially
// written record.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zstd"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
	"github.com/unkn0wn-root/cachepool/internal/util"
	"github.com/unkn0wn-root/cachepool/internal/wire"
	"github.com/unkn0wn-root/cachepool/log"
)

const (
	name           = "file"
	ext            = ".cache"
	tmpPrefix      = ".tmp-"
	defaultRetries = 3
	staleTemp      = time.Minute
)

var recordMagic = []byte("CPRC")

// Compile-time check that Driver implements driver.Driver.
var _ driver.Driver = (*Driver)(nil)

type Options struct {
	Dir string // root on the local disk; created when missing. Required unless FS is set.
	// FS replaces the local directory, e.g. memfs.New() in tests.
	FS         billy.Filesystem
	DefaultTTL time.Duration
	// Compress stores records zstd-compressed. Uncompressed records written
	// earlier stay readable.
	Compress bool
	Retries  int // write attempts; 0 => 3
	Logger   log.Logger
	Hooks    hooks.Hooks
	Clock    driver.Clock
}

type Driver struct {
	fs         billy.Filesystem
	defaultTTL time.Duration
	retries    int
	enc        *zstd.Encoder // nil when compression is off
	dec        *zstd.Decoder
	log        log.Logger
	hooks      hooks.Hooks
	clock      driver.Clock
}

func New(opts Options) (*Driver, error) {
	fsys := opts.FS
	if fsys == nil {
		if opts.Dir == "" {
			return nil, &driver.ConfigError{Component: "file driver", Reason: "directory is required"}
		}
		fsys = osfs.New(opts.Dir)
	}
	if err := fsys.MkdirAll(".", 0o755); err != nil {
		return nil, fmt.Errorf("file driver: create directory: %w", err)
	}
	info, err := fsys.Stat(".")
	if err != nil {
		return nil, fmt.Errorf("file driver: stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, &driver.ConfigError{Component: "file driver", Reason: fsys.Root() + " is not a directory"}
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("file driver: zstd decoder: %w", err)
	}
	d := &Driver{
		fs:         fsys,
		defaultTTL: opts.DefaultTTL,
		retries:    util.Coalesce(opts.Retries, defaultRetries),
		dec:        dec,
		log:        log.OrNop(opts.Logger),
		hooks:      hooks.OrNop(opts.Hooks),
		clock:      opts.Clock,
	}
	if opts.Compress {
		if d.enc, err = zstd.NewWriter(nil); err != nil {
			dec.Close()
			return nil, fmt.Errorf("file driver: zstd encoder: %w", err)
		}
	}
	return d, nil
}

// path is relative to the filesystem root.
func (d *Driver) path(key string) string {
	h := util.HashKey(key)
	return d.fs.Join(h[:2], h+ext)
}

func (d *Driver) Get(ctx context.Context, key string) driver.Entry {
	if key == "" || ctx.Err() != nil {
		return driver.Entry{}
	}
	p := d.path(key)
	raw, err := billyutil.ReadFile(d.fs, p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn("file read failed; treating as miss", log.Fields{"key": key, "err": err})
		}
		return driver.Entry{}
	}
	rec, err := d.decode(raw)
	if err != nil || rec.Key != key {
		d.drop(p, key, "corrupt")
		return driver.Entry{}
	}
	e := driver.Entry{Key: key, Value: rec.Payload, Expiry: rec.Expiry, Tags: rec.Tags}
	if e.Value == nil {
		e.Value = []byte{}
	}
	if !e.IsHit(d.clock.Now()) {
		_ = d.fs.Remove(p)
		return driver.Entry{}
	}
	return e
}

func (d *Driver) drop(path, key, reason string) {
	_ = d.fs.Remove(path)
	d.log.Debug("file record dropped", log.Fields{"key": key, "path": path, "reason": reason})
	d.hooks.CorruptEntry(name, key, reason)
}

// decode accepts both plain and zstd-compressed records.
func (d *Driver) decode(raw []byte) (wire.Record, error) {
	if !bytes.HasPrefix(raw, recordMagic) {
		plain, err := d.dec.DecodeAll(raw, nil)
		if err != nil {
			return wire.Record{}, err
		}
		raw = plain
	}
	return wire.DecodeRecord(raw)
}

func (d *Driver) Has(ctx context.Context, key string) bool {
	return d.Get(ctx, key).Value != nil
}

func (d *Driver) Set(ctx context.Context, it driver.Item) bool {
	if it.Key == "" || ctx.Err() != nil {
		return false
	}
	if it.IsDelete() {
		return d.Delete(ctx, it.Key)
	}
	b, err := wire.EncodeRecord(wire.Record{
		Key:     it.Key,
		Expiry:  driver.ExpiryFor(d.clock.Now(), it.TTL, d.defaultTTL),
		Tags:    it.Tags,
		Payload: it.Value,
	})
	if err != nil {
		d.log.Warn("file encode failed", log.Fields{"key": it.Key, "err": err})
		d.hooks.WriteRejected(name, it.Key)
		return false
	}
	if d.enc != nil {
		b = d.enc.EncodeAll(b, make([]byte, 0, len(b)/2))
	}

	p := d.path(it.Key)
	for attempt := 1; attempt <= d.retries; attempt++ {
		if err = d.writeAtomic(p, b); err == nil {
			return true
		}
		d.hooks.WriteRetry(name, it.Key, attempt, err)
		if ctx.Err() != nil {
			break
		}
	}
	d.log.Warn("file write failed", log.Fields{"key": it.Key, "path": p, "attempts": d.retries, "err": err})
	d.hooks.WriteRejected(name, it.Key)
	return false
}

// writeAtomic writes b to a temp file next to path and renames it into place.
func (d *Driver) writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := d.fs.TempFile(dir, tmpPrefix)
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		d.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		d.fs.Remove(tmp)
		return err
	}
	if err := d.fs.Rename(tmp, path); err != nil {
		d.fs.Remove(tmp)
		return err
	}
	return nil
}

func (d *Driver) Delete(_ context.Context, key string) bool {
	if err := d.fs.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.log.Warn("file delete failed", log.Fields{"key": key, "err": err})
		return false
	}
	return true
}

// Clear removes everything under the root, keeping the root itself.
func (d *Driver) Clear(context.Context) bool {
	entries, err := d.fs.ReadDir(".")
	if err != nil {
		d.log.Error("file clear failed", log.Fields{"dir": d.fs.Root(), "err": err})
		return false
	}
	ok := true
	for _, e := range entries {
		if err := billyutil.RemoveAll(d.fs, e.Name()); err != nil {
			d.log.Warn("file clear: remove failed", log.Fields{"name": e.Name(), "err": err})
			ok = false
		}
	}
	return ok
}

// Purge removes expired and corrupt records plus temp files abandoned by
// interrupted writes.
func (d *Driver) Purge(ctx context.Context) bool {
	removed, err := d.purge(ctx, d.clock.Now())
	if err != nil {
		d.log.Warn("file purge incomplete", log.Fields{"dir": d.fs.Root(), "removed": removed, "err": err})
		return false
	}
	if removed > 0 {
		d.log.Debug("file driver purged records", log.Fields{"removed": removed})
	}
	return true
}

// purge walks the two-level shard layout.
func (d *Driver) purge(ctx context.Context, now time.Time) (int, error) {
	shards, err := d.fs.ReadDir(".")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sh := range shards {
		if !sh.IsDir() {
			continue
		}
		files, err := d.fs.ReadDir(sh.Name())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // cleared concurrently
			}
			return removed, err
		}
		for _, fi := range files {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if d.purgeFile(d.fs.Join(sh.Name(), fi.Name()), fi, now) {
				removed++
			}
		}
	}
	return removed, nil
}

// purgeFile removes p when it is a stale temp file or a dead record.
func (d *Driver) purgeFile(p string, fi fs.FileInfo, now time.Time) bool {
	base := fi.Name()
	switch {
	case fi.IsDir():
		return false
	case strings.HasPrefix(base, tmpPrefix):
		return now.Sub(fi.ModTime()) > staleTemp && d.fs.Remove(p) == nil
	case strings.HasSuffix(base, ext):
		raw, err := billyutil.ReadFile(d.fs, p)
		if err != nil {
			return false
		}
		rec, err := d.decode(raw)
		if err == nil && (rec.Expiry.IsZero() || rec.Expiry.After(now)) {
			return false
		}
		return d.fs.Remove(p) == nil
	}
	return false
}

func (d *Driver) GetMany(ctx context.Context, keys []string) map[string]driver.Entry {
	return driver.SequentialGetMany(ctx, d, keys)
}

func (d *Driver) SetMany(ctx context.Context, items []driver.Item) bool {
	return driver.SequentialSetMany(ctx, d, items)
}

func (d *Driver) DeleteMany(ctx context.Context, keys []string) bool {
	return driver.SequentialDeleteMany(ctx, d, keys)
}

func (d *Driver) Close(context.Context) error {
	d.dec.Close()
	if d.enc != nil {
		return d.enc.Close()
	}
	return nil
}
