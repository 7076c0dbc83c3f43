package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GitDonce/TwoGuys/config"
	"github.com/GitDonce/TwoGuys/database"
)

func testConfig(t *testing.T, driver string) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"STORAGE_DRIVER": driver,
		"DATA_DIR":       t.TempDir(),
	})
	require.NoError(t, err)
	return cfg
}

func TestOpenStoreSeedsBackends(t *testing.T) {
	for _, driver := range []string{config.DriverJSON, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			store, err := openStore(ctx, testConfig(t, driver), zaptest.NewLogger(t))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			items, err := store.ListItems(ctx)
			require.NoError(t, err)
			assert.Len(t, items, 3)
			cities, err := store.ListCities(ctx)
			require.NoError(t, err)
			assert.Len(t, cities, 2)
		})
	}
}

func TestOpenStoreMissingSeedFile(t *testing.T) {
	cfg := testConfig(t, config.DriverJSON)
	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := openStore(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRunSeedForce(t *testing.T) {
	ctx := context.Background()
	c := &cli{cfg: testConfig(t, config.DriverSQLite), logger: zaptest.NewLogger(t)}

	store, err := openStore(ctx, c.cfg, c.logger)
	require.NoError(t, err)
	_, err = store.DeleteItem(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, c.runSeed(ctx, false))
	store, err = openStore(ctx, c.cfg, c.logger)
	require.NoError(t, err)
	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.NoError(t, store.Close())

	require.NoError(t, c.runSeed(ctx, true))
	store, err = openStore(ctx, c.cfg, c.logger)
	require.NoError(t, err)
	defer store.Close()
	items, err = store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestOpenBackendDoesNotSeedSQL(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.DriverSQLite)
	seed, err := database.LoadSeed(cfg.SeedFile)
	require.NoError(t, err)

	store, err := openBackend(ctx, cfg, seed, zaptest.NewLogger(t))
	require.NoError(t, err)
	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, store.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	c := &cli{cfg: cfg, logger: zap.New(core)}
	require.NoError(t, c.runSeed(ctx, false))
	assert.Equal(t, 1, logs.FilterMessage("seed applied").Len(), "seeded exactly once")

	store, err = openBackend(ctx, cfg, seed, nil)
	require.NoError(t, err)
	defer store.Close()
	items, err = store.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRestartKeepsEmptiedStore(t *testing.T) {
	for _, driver := range []string{config.DriverJSON, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, driver)

			store, err := openStore(ctx, cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			items, err := store.ListItems(ctx)
			require.NoError(t, err)
			for _, item := range items {
				_, err := store.DeleteItem(ctx, item.ID)
				require.NoError(t, err)
			}
			require.NoError(t, store.Close())

			store, err = openStore(ctx, cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer store.Close()
			items, err = store.ListItems(ctx)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	dir := t.TempDir()
	c := &cli{}
	root := c.rootCommand()
	require.NoError(t, root.ParseFlags([]string{
		"--port", "4000",
		"--storage", "SQLite",
		"--data-dir", dir,
		"--log-level", "debug",
	}))

	cfg := testConfig(t, config.DriverJSON)
	require.NoError(t, c.applyFlags(root, &cfg))
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "twoguys.db"), cfg.SQLitePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyFlagsRejectsUnknownDriver(t *testing.T) {
	c := &cli{}
	root := c.rootCommand()
	require.NoError(t, root.ParseFlags([]string{"--storage", "mongo"}))

	cfg := testConfig(t, config.DriverJSON)
	assert.Error(t, c.applyFlags(root, &cfg))
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn", true)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}
