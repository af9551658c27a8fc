package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigIsValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTAddress())
	assert.Equal(t, "store", cfg.TopicBase)
	assert.Equal(t, time.Second, cfg.ReconnectMinDelay)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_HOST", "mqtt")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_USER", "backend")
	t.Setenv("MQTT_PASS", "backendpass")
	t.Setenv("MQTT_BASE", "legacy")
	t.Setenv("MQTT_DISABLED", "1")
	t.Setenv("SHELF_TOPIC_BASE", "shop")
	t.Setenv("SHELF_ACK_TIMEOUT", "2500ms")
	t.Setenv("SHELF_RECONNECT_MAX_DELAY", "60")
	t.Setenv("SHELF_STATE_BACKEND", "memory")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "mqtt", cfg.MQTTBroker)
	assert.Equal(t, 1884, cfg.MQTTPort)
	assert.Equal(t, "backend", cfg.MQTTUser)
	assert.Equal(t, "backendpass", cfg.MQTTPassword)
	assert.True(t, cfg.MQTTDisabled)
	assert.Equal(t, "shop", cfg.TopicBase, "prefixed variable wins over legacy name")
	assert.Equal(t, 2500*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, BackendMemory, cfg.StateBackend)
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("SHELF_MQTT_PORT", "not-a-port")
	t.Setenv("SHELF_ACK_TIMEOUT", "soon")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, 10*time.Second, cfg.AckTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := "mqtt_broker: broker.local\ntopic_base: shop\nack_timeout: 4s\nstate_backend: postgres\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "broker.local", cfg.MQTTBroker)
	assert.Equal(t, "shop", cfg.TopicBase)
	assert.Equal(t, 4*time.Second, cfg.AckTimeout)
	assert.Equal(t, BackendPostgres, cfg.StateBackend)
	assert.Equal(t, 1883, cfg.MQTTPort, "keys absent from the file keep defaults")
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestLoadFromFlags(t *testing.T) {
	cfg := NewConfig()
	err := cfg.LoadFromFlags([]string{
		"--mqtt-broker", "10.0.0.5",
		"--ack-timeout", "750ms",
		"--reconnect-min-delay", "2s",
		"--mqtt-disabled",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.MQTTBroker)
	assert.Equal(t, 750*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReconnectMinDelay)
	assert.True(t, cfg.MQTTDisabled)
}

func TestLoadFromFlagsUnknown(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromFlags([]string{"--no-such-flag"}))
}

func TestConfigFileFromArgs(t *testing.T) {
	t.Setenv("SHELF_CONFIG_FILE", "")
	assert.Equal(t, "/etc/shelf.yaml", ConfigFileFromArgs([]string{"--log-level", "debug", "--config", "/etc/shelf.yaml"}))
	assert.Equal(t, "", ConfigFileFromArgs([]string{"--mqtt-disabled"}))

	t.Setenv("SHELF_CONFIG_FILE", "/srv/shelf.yaml")
	assert.Equal(t, "/srv/shelf.yaml", ConfigFileFromArgs(nil))
	assert.Equal(t, "a.yaml", ConfigFileFromArgs([]string{"--config=a.yaml"}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty broker", mutate: func(c *Config) { c.MQTTBroker = "" }, wantErr: true},
		{name: "bad mqtt port", mutate: func(c *Config) { c.MQTTPort = 70000 }, wantErr: true},
		{name: "empty topic base", mutate: func(c *Config) { c.TopicBase = "" }, wantErr: true},
		{name: "inverted reconnect bounds", mutate: func(c *Config) {
			c.ReconnectMinDelay = 10 * time.Second
			c.ReconnectMaxDelay = time.Second
		}, wantErr: true},
		{name: "zero ack timeout", mutate: func(c *Config) { c.AckTimeout = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StateBackend = "mongo" }, wantErr: true},
		{name: "postgres without db", mutate: func(c *Config) {
			c.StateBackend = BackendPostgres
			c.PostgresDB = ""
		}, wantErr: true},
		{name: "memory backend ignores redis host", mutate: func(c *Config) {
			c.StateBackend = BackendMemory
			c.RedisHost = ""
		}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := NewConfig()
	cfg.PostgresPassword = "secret"
	assert.Equal(t,
		"host=localhost port=5432 user=shelf password=secret dbname=shelf sslmode=disable",
		cfg.PostgresConnectionString())
}
