package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/boldengine/internal/config"
	"github.com/alanyoungcy/boldengine/internal/metrics"
	"github.com/alanyoungcy/boldengine/internal/notify"
)

func testApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHooks_OmitDisabledNotifier(t *testing.T) {
	a := testApp(t, nil)
	deps := &Dependencies{
		Metrics:  metrics.New(),
		Notifier: notify.NewNotifier(nil, nil, slog.Default()),
	}

	h := a.hooks(deps)
	assert.Nil(t, h.Alerts)
	assert.Nil(t, h.Events)
	assert.Nil(t, h.Audit)
	assert.Same(t, deps.Metrics, h.Metrics)
}

func TestTasks_UseConfiguredIntervals(t *testing.T) {
	a := testApp(t, func(c *config.Config) {
		c.Engine.ProvisionInterval.Duration = 30 * time.Second
	})
	deps := &Dependencies{Metrics: metrics.New()}

	prov := a.provisionTask(deps)
	assert.Equal(t, taskProvision, prov.Name)
	assert.Equal(t, a.cfg.Engine.ProvisionEvery(), prov.Interval)
	assert.NotNil(t, prov.Run)

	settle := a.settleTask(deps)
	assert.Equal(t, taskSettle, settle.Name)
	assert.Equal(t, a.cfg.Engine.Interval.Duration, settle.Interval)
}

func TestRunTasks_LockWithoutRedis(t *testing.T) {
	a := testApp(t, func(c *config.Config) {
		c.Engine.DistributedLock = true
		c.Server.Enabled = false
	})
	deps := &Dependencies{Metrics: metrics.New()}

	err := a.runTasks(context.Background(), deps, a.provisionTask(deps))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestOpenVaultStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Defaults()
	cfg.Vault.Path = filepath.Join(t.TempDir(), "vault_keys.json")
	store, closeFn, check, err := openVaultStore(context.Background(), &cfg, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.Nil(t, check)

	require.NoError(t, store.Save(context.Background(), "m1", []byte("secret")))
	got, err := store.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)

	cfg.Vault.Backend = "ftp"
	_, _, _, err = openVaultStore(context.Background(), &cfg, logger)
	assert.Error(t, err)
}
