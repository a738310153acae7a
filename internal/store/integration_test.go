package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"cpcal/internal/config"
	"cpcal/internal/store"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("cpcal"),
		postgres.WithUsername("cpcal"),
		postgres.WithPassword("cpcal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://cpcal:cpcal@%s/cpcal?sslmode=disable", endpoint)

	kv, err := store.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	testKVContract(t, kv)
	require.NoError(t, kv.Close())

	prefs, err := store.Open(ctx, config.StoreConfig{Driver: config.StorePostgres, DSN: dsn})
	require.NoError(t, err)
	defer prefs.Close()

	on, _, err := prefs.ToggleBookmark(ctx, "pg-1")
	require.NoError(t, err)
	assert.True(t, on)

	ids, err := prefs.Bookmarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pg-1"}, ids)
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	kv, err := store.OpenRedis(ctx, endpoint, "", 0, "cpcal-test")
	require.NoError(t, err)
	defer kv.Close()

	testKVContract(t, kv)

	prefs := store.NewPreferences(kv, config.StoreRedis)
	s, err := prefs.NotificationSettings(ctx)
	require.NoError(t, err)
	s.EmailEnabled = true
	s.Email = "me@example.com"
	require.NoError(t, prefs.SaveNotificationSettings(ctx, s))

	got, err := prefs.NotificationSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
