package transports

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/courier/internal/config"
)

func roundTrip(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	q, err := b.Queue("jobs")
	require.NoError(t, err)
	require.NoError(t, q.EnsureExists(ctx))
	require.NoError(t, q.Enqueue(ctx, []byte("x")))
	msgs, err := q.LeaseBatch(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
	st, err := b.Stats(ctx, "jobs")
	require.NoError(t, err)
	require.Zero(t, st.Ready+st.InFlight)
}

func TestOpenByKind(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []cfgpkg.TransportConfig{
		{Kind: cfgpkg.TransportMemory},
		{Kind: cfgpkg.TransportPebble, DataDir: t.TempDir(), Fsync: "never"},
		{Kind: cfgpkg.TransportRedis, RedisAddr: mr.Addr(), RedisPrefix: "test"},
	}
	for _, cfg := range tests {
		t.Run(cfg.Kind, func(t *testing.T) {
			b, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			defer func() { require.NoError(t, b.Close()) }()
			roundTrip(t, b)
		})
	}
}

func TestOpenRejectsUnknownKindAndBadFsync(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, cfgpkg.TransportConfig{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)
	_, err = Open(ctx, cfgpkg.TransportConfig{Kind: cfgpkg.TransportPebble, DataDir: t.TempDir(), Fsync: "sometimes"}, nil)
	require.Error(t, err)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, cfgpkg.TransportConfig{Kind: cfgpkg.TransportRedis, RedisAddr: addr}, nil)
	require.Error(t, err)
}

func TestStoreDir(t *testing.T) {
	require.Equal(t, filepath.Join("/var/lib/courier", "store"), StoreDir("/var/lib/courier"))
	require.Equal(t, filepath.Join(cfgpkg.DefaultDataDir(), "store"), StoreDir(""))
}
