package gatekeep

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/messaging"
)

const configYAML = `
store:
  driver: sqlite
  dsn: ${env.GATEKEEP_TEST_DSN}
gate:
  defaultTTL: 2h
  operations:
    delete_contact:
      mode: always
      riskTier: high
      ttl: 30m
    export:
      mode: conditional
      sensitive:
        - name: scope
          default: self
sweeper:
  interval: 15s
seal:
  key: "0000000000000000000000000000000000000000000000000000000000000001"
log:
  level: debug
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("GATEKEEP_TEST_DSN", "file:gatekeep.db")
	path := filepath.Join(t.TempDir(), "gatekeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	config, err := LoadConfig(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", config.Store.Driver)
	assert.Equal(t, "file:gatekeep.db", config.Store.DSN)
	assert.Equal(t, 2*time.Hour, config.Gate.DefaultTTL)
	require.Contains(t, config.Gate.Operations, "delete_contact")
	assert.Equal(t, policy.ModeAlways, config.Gate.Operations["delete_contact"].Mode)
	assert.Equal(t, 30*time.Minute, config.Gate.Operations["delete_contact"].TTL)
	assert.Equal(t, "self", config.Gate.Operations["export"].Sensitive[0].Default)
	assert.Equal(t, 15*time.Second, config.Sweeper.Interval)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, messaging.VendorMemory, config.Events.Vendor, "defaults survive")
}

func TestLoadConfig_Memory(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	URL := "mem://localhost/gatekeep/invalid.yaml"
	require.NoError(t, fs.Upload(ctx, URL, 0o644, bytes.NewReader([]byte("store:\n  driver: oracle\n  dsn: x\n"))))
	_, err := LoadConfig(ctx, URL, fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")

	_, err = LoadConfig(ctx, "mem://localhost/gatekeep/missing.yaml", fs)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		mutate      func(c *Config)
		expect      string
	}{
		{description: "default", mutate: func(c *Config) {}},
		{description: "nil sections", mutate: func(c *Config) { *c = Config{} }},
		{description: "sqlite without dsn", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, expect: "store.dsn"},
		{description: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "oracle" }, expect: "unsupported store driver"},
		{description: "bad mode", mutate: func(c *Config) {
			c.Gate.Operations = map[string]*policy.Operation{"x": {Mode: "sometimes"}}
		}, expect: "invalid mode"},
		{description: "bad seal key", mutate: func(c *Config) { c.Seal.Key = "short" }, expect: "seal"},
		{description: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, expect: "log"},
		{description: "bad vendor", mutate: func(c *Config) { c.Events.Vendor = "kafka" }, expect: "unsupported vendor"},
		{description: "negative interval", mutate: func(c *Config) { c.Sweeper.Interval = -time.Second }, expect: "sweeper.interval"},
	}
	for _, testCase := range testCases {
		config := DefaultConfig()
		testCase.mutate(config)
		err := config.Validate()
		if testCase.expect == "" {
			assert.NoError(t, err, testCase.description)
			continue
		}
		if assert.Error(t, err, testCase.description) {
			assert.True(t, strings.Contains(err.Error(), testCase.expect), testCase.description+": "+err.Error())
		}
	}
}
