package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "shipsync"
kafka:
  host: "localhost"
  port: 9092
redis:
  host: "localhost"
  port: 6379
storage:
  endpoint: "localhost:9000"
  bucket: "labels"
  access_key: "ak"
  secret_key: "sk"
ppl:
  environment: "test"
  client_id: "cid"
  client_secret: "secret"
  label_format: "Pdf"
sync:
  http_addr: ":8082"
  label_interval_seconds: 60
  tracking_interval_seconds: 900
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, 9092, cfg.Kafka.Port)
	require.Equal(t, "labels", cfg.Storage.Bucket)
	require.Equal(t, "cid", cfg.PPL.ClientID)
	require.Equal(t, 60, cfg.Sync.LabelIntervalSeconds)
	require.Equal(t, 900, cfg.Sync.TrackingIntervalSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cfg.yaml")
	require.Error(t, err)
}
