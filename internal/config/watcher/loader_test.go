package watcher_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
app:
  name: feedwatch/watcher
  env: test
storage:
  driver: bolt
  bolt:
    path: /tmp/fw.db
notify:
  control_url: https://ctl.example.com
endpoints:
  pro:
    apiEndpoint: https://api.example.com/tx
    method: POST
    itemsPath: data.items
    idPath: payment_id
    timestampPath: approval_date
    enableSms: true
    phoneNumbers: ["+8801"]
    checkInterval: 30000
  Staging:
    tag: Staging
    apiEndpoint: https://staging.example.com/tx
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "watcher.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
	assert.Equal(t, time.Second, cfg.Storage.Bolt.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "Asia/Dhaka", cfg.Notify.Timezone)
	assert.Equal(t, "https://ctl.example.com", cfg.Notify.ControlURL)

	base := cfg.BaseEndpoints()
	require.Contains(t, base, "pro")
	require.Contains(t, base, "Staging")

	pro := base["pro"]
	assert.Equal(t, "pro", pro.Tag)
	assert.Equal(t, "https://api.example.com/tx", pro.APIEndpoint)
	assert.Equal(t, "data.items", pro.ItemsPath)
	assert.Equal(t, "payment_id", pro.IDPath)
	assert.True(t, pro.EnableSMS)
	assert.Equal(t, []string{"+8801"}, pro.PhoneNumbers)
	assert.Equal(t, 30*time.Second, pro.Interval())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Empty(t, cfg.BaseEndpoints())
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: redis\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "outbox:\n  enable: true\n"))
	assert.Error(t, err)
}

func TestLoad_AbsentPathKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ControlAddr)
}
