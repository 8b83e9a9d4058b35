package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "fleetnotify/pkg/logx"
)

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := st.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Save(ctx, "history", `[{"id":"a"}]`))
	v, ok, err := st.Load(ctx, "history")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, v)

	require.NoError(t, st.Save(ctx, "history", `[]`))
	v, _, err = st.Load(ctx, "history")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	require.NoError(t, st.Remove(ctx, "history"))
	require.NoError(t, st.Remove(ctx, "history"))
	_, ok, err = st.Load(ctx, "history")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDrivers(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		st, err := Open(Config{Driver: "memory"}, logx.Nop())
		require.NoError(t, err)
		defer st.Close()
		exerciseStore(t, st)
	})

	t.Run("file", func(t *testing.T) {
		st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "kv.json")}, logx.Nop())
		require.NoError(t, err)
		defer st.Close()
		exerciseStore(t, st)
	})

	t.Run("sqlite", func(t *testing.T) {
		st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kv.db")}, logx.Nop())
		require.NoError(t, err)
		defer st.Close()
		exerciseStore(t, st)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		st, err := Open(Config{Driver: "redis", Addr: mr.Addr(), KeyPrefix: "test:"}, logx.Nop())
		require.NoError(t, err)
		defer st.Close()
		exerciseStore(t, st)
	})
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "etcd"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "k", "v"))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	v, ok, err := st.Load(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFileStoreCorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	_, ok, err := st.Load(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreUsesPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "", logx.Nop())
	defer st.Close()

	require.NoError(t, st.Save(context.Background(), "opt_out", "true"))
	got, err := mr.Get("fleetnotify:opt_out")
	require.NoError(t, err)
	assert.Equal(t, "true", got)
}

func TestClosedMemoryStore(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.Save(context.Background(), "k", "v"), ErrClosed)
}
