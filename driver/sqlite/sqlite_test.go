package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/cachepool/driver"
	"github.com/unkn0wn-root/cachepool/hooks"
)

func openMem(t *testing.T, now *time.Time) *Driver {
	t.Helper()
	d, err := Open(context.Background(), ":memory:", Options{
		DefaultTTL: time.Hour,
		Clock:      func() time.Time { return *now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, driver.ErrConfig)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = New(context.Background(), db, Options{Table: "bad; DROP TABLE x"})
	assert.ErrorIs(t, err, driver.ErrConfig)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	require.True(t, d.Set(ctx, driver.Item{Key: "k", Value: []byte("v"), TTL: time.Minute, Tags: []string{"a", "b"}}))
	e := d.Get(ctx, "k")
	assert.Equal(t, []byte("v"), e.Value)
	assert.Equal(t, []string{"a", "b"}, e.Tags)
	assert.True(t, e.Expiry.Equal(now.Add(time.Minute)))

	// upsert replaces value and tags
	require.True(t, d.Set(ctx, driver.Item{Key: "k", Value: []byte("w"), TTL: 0}))
	e = d.Get(ctx, "k")
	assert.Equal(t, []byte("w"), e.Value)
	assert.Empty(t, e.Tags)
	assert.True(t, e.Expiry.IsZero())

	require.True(t, d.Set(ctx, driver.Item{Key: "empty", Value: []byte{}, TTL: 0}))
	assert.True(t, d.Has(ctx, "empty"), "empty payload is a stored value")
}

func TestTTLContract(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	d.Set(ctx, driver.Item{Key: "never", Value: []byte("v"), TTL: 0})
	d.Set(ctx, driver.Item{Key: "default", Value: []byte("v"), TTL: driver.DefaultTTL})
	d.Set(ctx, driver.Item{Key: "neg", Value: []byte("v"), TTL: 0})
	d.Set(ctx, driver.Item{Key: "neg", Value: []byte("v"), TTL: -1})
	assert.False(t, d.Has(ctx, "neg"))

	now = now.Add(5 * 365 * 24 * time.Hour)
	assert.True(t, d.Has(ctx, "never"))
	assert.False(t, d.Has(ctx, "default"))
}

func TestPurgeRemovesOnlyExpiredRows(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	d.Set(ctx, driver.Item{Key: "live", Value: []byte("v"), TTL: 0})
	d.Set(ctx, driver.Item{Key: "dead", Value: []byte("v"), TTL: time.Second})
	now = now.Add(time.Minute)
	require.True(t, d.Purge(ctx))

	var n int
	require.NoError(t, d.db.QueryRow(`SELECT COUNT(*) FROM cachepool`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.True(t, d.Has(ctx, "live"))
}

func TestBatchOpsAcrossChunks(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	const n = chunk + 17
	items := make([]driver.Item, 0, n)
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%04d", i)
		keys = append(keys, k)
		items = append(items, driver.Item{Key: k, Value: []byte(k), TTL: 0})
	}
	require.True(t, d.SetMany(ctx, items))

	got := d.GetMany(ctx, append(keys, "missing"))
	assert.Len(t, got, n)
	assert.Equal(t, []byte("k0510"), got["k0510"].Value)

	require.True(t, d.DeleteMany(ctx, keys))
	assert.Empty(t, d.GetMany(ctx, keys))

	d.Set(ctx, driver.Item{Key: "x", Value: []byte("1")})
	require.True(t, d.Clear(ctx))
	assert.False(t, d.Has(ctx, "x"))
}

func TestGetManyDropsExpiredRows(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	d.SetMany(ctx, []driver.Item{
		{Key: "a", Value: []byte("1"), TTL: time.Second},
		{Key: "b", Value: []byte("2"), TTL: 0},
	})
	now = now.Add(time.Minute)
	got := d.GetMany(ctx, []string{"a", "b"})
	assert.Len(t, got, 1)
	assert.Contains(t, got, "b")

	var n int
	require.NoError(t, d.db.QueryRow(`SELECT COUNT(*) FROM cachepool WHERE key = 'a'`).Scan(&n))
	assert.Zero(t, n, "expired row should be deleted on read")
}

func TestCorruptTagsSelfHeal(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := openMem(t, &now)

	_, err := d.db.Exec(`INSERT INTO cachepool (key, value, expiry, tags) VALUES ('k', x'01', 0, x'ff00')`)
	require.NoError(t, err)
	assert.False(t, d.Has(ctx, "k"))
	assert.False(t, d.Has(ctx, "k"))
}

type rejectRecorder struct {
	hooks.Nop
	rejected []string
}

func (r *rejectRecorder) WriteRejected(_, key string) { r.rejected = append(r.rejected, key) }

func newMocked(t *testing.T, h hooks.Hooks) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS cachepool")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS cachepool_expiry")).WillReturnResult(sqlmock.NewResult(0, 0))
	d, err := New(context.Background(), db, Options{Hooks: h})
	require.NoError(t, err)
	return d, mock
}

func TestStorageFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	rec := &rejectRecorder{}
	d, mock := newMocked(t, rec)
	boom := errors.New("database is locked")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, expiry, tags FROM cachepool")).WithArgs("k").WillReturnError(boom)
	assert.Nil(t, d.Get(ctx, "k").Value, "query errors read as misses")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cachepool")).WillReturnError(boom)
	assert.False(t, d.Set(ctx, driver.Item{Key: "k", Value: []byte("v")}))
	assert.Equal(t, []string{"k"}, rec.rejected)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cachepool WHERE key = ?")).WithArgs("k").WillReturnError(boom)
	assert.False(t, d.Delete(ctx, "k"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cachepool WHERE expiry > 0")).WillReturnError(boom)
	assert.False(t, d.Purge(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetManyRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	d, mock := newMocked(t, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cachepool")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cachepool")).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	ok := d.SetMany(ctx, []driver.Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	})
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseLeavesBorrowedDBOpen(t *testing.T) {
	d, _ := newMocked(t, nil)
	require.NoError(t, d.Close(context.Background()))
	assert.NoError(t, d.db.Ping())
}
