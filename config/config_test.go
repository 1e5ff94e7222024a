package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("applies defaults for missing keys", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "s3cret"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "postgres", cfg.Storage.Driver)
		assert.Equal(t, 3, cfg.Ledger.RetryAttempts)
		assert.Equal(t, "mindbridge.events", cfg.Kafka.Topics.Events)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 24, cfg.JWT.ExpireHours)
		assert.Equal(t, 8, cfg.WorkerPool.Size)
	})

	t.Run("reads nested sections", func(t *testing.T) {
		path := writeConfig(t, `
[storage]
driver = "memory"

[jwt]
secret = "s3cret"

[gateway]
node_id = "node-b"
nodes = ["node-a", "node-b"]

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "memory", cfg.Storage.Driver)
		assert.Equal(t, "node-b", cfg.Gateway.NodeID)
		assert.Equal(t, []string{"node-a", "node-b"}, cfg.Gateway.Nodes)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "from-file"
`)
		t.Setenv("MINDBRIDGE_JWT_SECRET", "from-env")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.JWT.Secret)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})

	t.Run("rejects unknown storage driver", func(t *testing.T) {
		path := writeConfig(t, `
[storage]
driver = "sqlite"

[jwt]
secret = "s3cret"
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "storage driver")
	})

	t.Run("requires jwt secret", func(t *testing.T) {
		path := writeConfig(t, `
[server]
port = 9000
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "jwt.secret")
	})

	t.Run("node must be listed among gateway nodes", func(t *testing.T) {
		path := writeConfig(t, `
[jwt]
secret = "s3cret"

[gateway]
node_id = "node-c"
nodes = ["node-a", "node-b"]
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "gateway.node_id")
	})
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "mb"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=mb sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
