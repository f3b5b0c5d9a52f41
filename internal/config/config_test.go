package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
log:
  file: /var/log/app.log
  level: debug
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: app
  password: secret
  name: veriscope
minio:
  endpoint: minio:9000
  accessKey: ak
  secretKey: sk
  bucketName: files
  region: us-east-1
pipeline:
  workers: 4
  concurrency: 10
  maxAttempts: 5
  callTimeoutSeconds: 60
  jobTimeoutSeconds: 600
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 10, cfg.Pipeline.Concurrency)
	assert.Equal(t, time.Minute, cfg.CallTimeout())
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 20, cfg.Pipeline.MaxImagesPerCall)
	assert.InDelta(t, 0.1, cfg.Pipeline.SecondPassMargin, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.CallTimeout())
	assert.Equal(t, 15*time.Minute, cfg.JobTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSNBuilders(t *testing.T) {
	var cfg Config
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 3306
	cfg.Database.User = "root"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "veriscope"

	assert.Equal(t,
		"root:pw@tcp(localhost:3306)/veriscope?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())
	assert.Equal(t,
		"host=localhost port=3306 user=root password=pw dbname=veriscope sslmode=disable",
		cfg.PostgresDSN())
}
