package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elanza/clinic/internal/config"
	"github.com/elanza/clinic/internal/platform/auth"
	"github.com/elanza/clinic/internal/platform/blobstore"
	"github.com/elanza/clinic/internal/platform/db"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/identity"
	"github.com/elanza/clinic/internal/platform/metrics"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"retention", "enforce"},
		{"claims", "sync"},
		{"token", "issue"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestNewLogger_Level(t *testing.T) {
	cfg := &config.Config{Env: "production", LogLevel: "warn"}
	assert.Equal(t, zerolog.WarnLevel, newLogger(cfg).GetLevel())

	cfg.LogLevel = "nonsense"
	assert.Equal(t, zerolog.InfoLevel, newLogger(cfg).GetLevel())
}

func TestNewBlobStore(t *testing.T) {
	_, ok := newBlobStore(&config.Config{BlobBackend: "memory"}).(*blobstore.MemoryStore)
	assert.True(t, ok)

	cfg := &config.Config{BlobBackend: "http", BlobBaseURL: "https://storage.example.com", BlobBucket: "clinic"}
	_, ok = newBlobStore(cfg).(*blobstore.HTTPStore)
	assert.True(t, ok)
}

func TestNewRedisClient(t *testing.T) {
	client, err := newRedisClient(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	_, err = newRedisClient(&config.Config{RedisURL: "://bad"})
	assert.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{EventBus: "redis", RedisURL: "redis://" + mr.Addr()}
	client, err := newRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	_, ok := newEventBus(cfg, client, zerolog.Nop(), metrics.Nop{}).(*events.RedisBus)
	assert.True(t, ok)

	cfg.EventBus = "memory"
	_, ok = newEventBus(cfg, client, zerolog.Nop(), metrics.Nop{}).(*events.MemoryBus)
	assert.True(t, ok)

	_, ok = newClaimsStore(client).(*identity.RedisClaims)
	assert.True(t, ok)
	_, ok = newClaimsStore(nil).(*identity.MemoryClaims)
	assert.True(t, ok)
}

func TestClaimedRole(t *testing.T) {
	ctx := context.Background()

	role, err := claimedRole(ctx, &config.Config{}, "ana")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultRole, role)

	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisURL: "redis://" + mr.Addr()}
	client, err := newRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	claims := identity.NewRedisClaims(client)
	require.NoError(t, claims.Ensure(ctx, "ana"))
	role, err = claimedRole(ctx, cfg, "ana")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultRole, role)

	admin := string(auth.RoleAdmin)
	require.NoError(t, claims.SetRoleClaim(ctx, "ana", &admin))
	role, err = claimedRole(ctx, cfg, "ana")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, role)

	_, err = claimedRole(ctx, cfg, "nobody")
	assert.Error(t, err)
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_packages.sql"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "applied")
	assert.Contains(t, lines[1], "2025-03-01 10:00:00")
	assert.Contains(t, lines[2], "pending")
}
