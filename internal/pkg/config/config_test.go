// internal/pkg/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.App.OrderTimeout.Std())
	assert.Equal(t, 60*time.Second, cfg.Inventory.SweepInterval.Std())
	assert.Equal(t, "http://localhost:3005", cfg.Services["inventory-service"])
	assert.Empty(t, cfg.App.OrderRules)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  orderTimeout: 5m
  orderRules:
    - quantity <= 100
infra:
  redis:
    stockTTL: 45s
inventory:
  sweepInterval: 30s
  sweepLockPath: /atlas/inventory/sweep
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("MYSQL_DSN", "app:secret@tcp(db:3306)/atlas?parseTime=true")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092,kafka2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.App.OrderTimeout.Std())
	assert.Equal(t, []string{"quantity <= 100"}, cfg.App.OrderRules)
	assert.Equal(t, 45*time.Second, cfg.Infra.Redis.StockTTL.Std())
	assert.Equal(t, 30*time.Second, cfg.Inventory.SweepInterval.Std())
	assert.Equal(t, "/atlas/inventory/sweep", cfg.Inventory.SweepLockPath)

	// 环境变量覆盖在文件之后生效
	assert.Equal(t, "app:secret@tcp(db:3306)/atlas?parseTime=true", cfg.Infra.MySQL.DSN)
	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, cfg.Infra.Kafka.Brokers)
}

func TestDurationRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  orderTimeout: soon\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}
