// ABOUTME: Tests for the two-scope storage adapter
// ABOUTME: Validates scope isolation, fallback on driver failure, and namespacing

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-widget/internal/config"
	"github.com/2389/coven-widget/internal/logging"
)

// failingDriver simulates a scope disabled by the host (privacy mode).
type failingDriver struct {
	calls int
}

func (f *failingDriver) Get(context.Context, string) (string, bool, error) {
	f.calls++
	return "", false, errors.New("quota exceeded")
}

func (f *failingDriver) Set(context.Context, string, string) error {
	f.calls++
	return errors.New("quota exceeded")
}

func (f *failingDriver) Delete(context.Context, string) error {
	f.calls++
	return errors.New("quota exceeded")
}

func (f *failingDriver) Close() error { return nil }

func TestAdapter_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryDriver(), NewMemoryDriver(), logging.Discard())

	a.Write(ctx, Durable, "k", "durable-value")
	a.Write(ctx, Ephemeral, "k", "ephemeral-value")

	v, ok := a.Read(ctx, Durable, "k")
	assert.True(t, ok)
	assert.Equal(t, "durable-value", v)

	v, ok = a.Read(ctx, Ephemeral, "k")
	assert.True(t, ok)
	assert.Equal(t, "ephemeral-value", v)

	_, ok = a.Read(ctx, Durable, "missing")
	assert.False(t, ok)
}

func TestAdapter_DurableFallsBackToEphemeral(t *testing.T) {
	ctx := context.Background()
	broken := &failingDriver{}
	ephemeral := NewMemoryDriver()
	a := NewAdapter(broken, ephemeral, logging.Discard())

	a.Write(ctx, Durable, KeyConversation, "conv-1")

	v, ok := a.Read(ctx, Durable, KeyConversation)
	require.True(t, ok)
	assert.Equal(t, "conv-1", v)
	assert.True(t, a.Degraded(Durable))

	// the value landed in the ephemeral driver
	raw, ok, err := ephemeral.Get(ctx, KeyConversation)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "conv-1", raw)

	// once marked broken the durable driver is not retried
	calls := broken.calls
	a.Read(ctx, Durable, KeyConversation)
	assert.Equal(t, calls, broken.calls)
}

func TestAdapter_BothScopesBroken(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(&failingDriver{}, &failingDriver{}, logging.Discard())

	a.Write(ctx, Durable, KeyVisitorSession, "visitor-1")
	a.Write(ctx, Ephemeral, KeyWelcomeShown, "true")

	v, ok := a.Read(ctx, Durable, KeyVisitorSession)
	assert.True(t, ok)
	assert.Equal(t, "visitor-1", v)
	assert.True(t, a.ReadFlag(ctx, Ephemeral, KeyWelcomeShown))
	assert.True(t, a.Degraded(Durable))
	assert.True(t, a.Degraded(Ephemeral))

	a.Remove(ctx, Durable, KeyVisitorSession)
	_, ok = a.Read(ctx, Durable, KeyVisitorSession)
	assert.False(t, ok)
}

func TestAdapter_NilDrivers(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(nil, nil, logging.Discard())

	a.Write(ctx, Durable, "k", "v")
	v, ok := a.Read(ctx, Durable, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.False(t, a.Degraded(Durable))
}

func TestAdapter_Flags(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryDriver(), NewMemoryDriver(), logging.Discard())

	assert.False(t, a.ReadFlag(ctx, Ephemeral, KeyClosedThisSession))
	a.WriteFlag(ctx, Ephemeral, KeyClosedThisSession, true)
	assert.True(t, a.ReadFlag(ctx, Ephemeral, KeyClosedThisSession))
	a.WriteFlag(ctx, Ephemeral, KeyClosedThisSession, false)
	assert.False(t, a.ReadFlag(ctx, Ephemeral, KeyClosedThisSession))
}

func TestAdapter_Namespace(t *testing.T) {
	ctx := context.Background()
	base := NewAdapter(NewMemoryDriver(), NewMemoryDriver(), logging.Discard())
	a := base.WithNamespace("widget-a")
	b := base.WithNamespace("widget-b")

	a.Write(ctx, Durable, KeyConversation, "conv-a")
	_, ok := b.Read(ctx, Durable, KeyConversation)
	assert.False(t, ok)

	v, ok := a.Read(ctx, Durable, KeyConversation)
	assert.True(t, ok)
	assert.Equal(t, "conv-a", v)
}

func TestAdapter_ClosedMemoryDriverDegrades(t *testing.T) {
	ctx := context.Background()
	durable := NewMemoryDriver()
	require.NoError(t, durable.Close())
	a := NewAdapter(durable, NewMemoryDriver(), logging.Discard())

	a.Write(ctx, Durable, "k", "v")
	v, ok := a.Read(ctx, Durable, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.True(t, a.Degraded(Durable))
}

func TestSQLiteDriver_RoundTripAndPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "widget.db")

	d, err := NewSQLiteDriver(path)
	require.NoError(t, err)

	_, ok, err := d.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Set(ctx, KeyVisitorSession, "visitor-1"))
	require.NoError(t, d.Set(ctx, KeyVisitorSession, "visitor-2"))
	require.NoError(t, d.Close())

	// reopen: durable scope survives the process
	d, err = NewSQLiteDriver(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	v, ok, err := d.Get(ctx, KeyVisitorSession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "visitor-2", v)

	require.NoError(t, d.Delete(ctx, KeyVisitorSession))
	_, ok, err = d.Get(ctx, KeyVisitorSession)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDriver(t *testing.T) {
	url := os.Getenv("COVEN_WIDGET_REDIS_URL")
	if url == "" {
		t.Skip("COVEN_WIDGET_REDIS_URL not set")
	}
	ctx := context.Background()

	d, err := NewRedisDriver(ctx, url, "coven-widget-test:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.Set(ctx, "k", "v"))
	v, ok, err := d.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, d.Delete(ctx, "k"))
	_, ok, err = d.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_UnreachableRedisDegrades(t *testing.T) {
	ctx := context.Background()
	a := Open(ctx, config.StorageConfig{
		Durable:  config.DurableRedis,
		RedisURL: "redis://127.0.0.1:1/0",
	}, logging.Discard())
	t.Cleanup(func() { a.Close() })

	a.Write(ctx, Durable, KeyVisitorSession, "visitor-1")
	v, ok := a.Read(ctx, Durable, KeyVisitorSession)
	assert.True(t, ok)
	assert.Equal(t, "visitor-1", v)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	a := Open(ctx, config.StorageConfig{
		Durable:    config.DurableSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "w.db"),
	}, logging.Discard())
	t.Cleanup(func() { a.Close() })

	a.Write(ctx, Durable, KeyConversation, "conv-1")
	v, ok := a.Read(ctx, Durable, KeyConversation)
	assert.True(t, ok)
	assert.Equal(t, "conv-1", v)
	assert.False(t, a.Degraded(Durable))
}
