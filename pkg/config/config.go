package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the shelf bridge process
type Config struct {
	// MQTT configuration
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTDisabled bool   `yaml:"mqtt_disabled"`

	// Bridge configuration
	TopicBase         string        `yaml:"topic_base"`
	ReconnectMinDelay time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	KeepAlive         time.Duration `yaml:"keep_alive"`
	ConnectWait       time.Duration `yaml:"connect_wait"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	InboundQueueSize  int           `yaml:"inbound_queue_size"`
	DisplayCurrency   string        `yaml:"display_currency"`

	// State store configuration
	StateBackend string `yaml:"state_backend"`

	// Redis configuration
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Postgres configuration
	PostgresHost               string        `yaml:"postgres_host"`
	PostgresPort               int           `yaml:"postgres_port"`
	PostgresUser               string        `yaml:"postgres_user"`
	PostgresPassword           string        `yaml:"postgres_password"`
	PostgresDB                 string        `yaml:"postgres_db"`
	PostgresSSLMode            string        `yaml:"postgres_sslmode"`
	PostgresMaxConnections     int           `yaml:"postgres_max_connections"`
	PostgresMaxIdleConnections int           `yaml:"postgres_max_idle_connections"`
	PostgresConnMaxLifetime    time.Duration `yaml:"postgres_conn_max_lifetime"`

	// Service configuration
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	APIPort     int    `yaml:"api_port"`
	LogLevel    string `yaml:"log_level"`

	// ConfigFile is the YAML file the values were layered from, if any
	ConfigFile string `yaml:"-"`
}

// State store backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:   "localhost",
		MQTTPort:     1883,
		MQTTUser:     "",
		MQTTPassword: "",
		MQTTClientID: "",

		TopicBase:         "store",
		ReconnectMinDelay: 1 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		KeepAlive:         30 * time.Second,
		ConnectWait:       3 * time.Second,
		AckTimeout:        10 * time.Second,
		InboundQueueSize:  256,
		DisplayCurrency:   "PLN",

		StateBackend: BackendRedis,

		RedisHost: "localhost",
		RedisPort: 6379,
		RedisDB:   0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "shelf",
		PostgresDB:                 "shelf",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,

		ServiceName: "shelf-bridge",
		HealthPort:  8080,
		APIPort:     3000,
		LogLevel:    "info",
	}
}

// LoadFromFile overlays values from a YAML file. Keys missing from the file keep their current value.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables with SHELF_ prefix.
// The unprefixed MQTT_* names used by the display firmware deployment are read first
// so the prefixed form wins when both are set.
func (c *Config) LoadFromEnv() {
	// Legacy deployment names
	setString(&c.MQTTBroker, "MQTT_HOST")
	setInt(&c.MQTTPort, "MQTT_PORT")
	setString(&c.MQTTUser, "MQTT_USER")
	setString(&c.MQTTPassword, "MQTT_PASS")
	setString(&c.TopicBase, "MQTT_BASE")
	if v := os.Getenv("MQTT_DISABLED"); v == "1" {
		c.MQTTDisabled = true
	}

	// MQTT configuration
	setString(&c.MQTTBroker, "SHELF_MQTT_BROKER")
	setInt(&c.MQTTPort, "SHELF_MQTT_PORT")
	setString(&c.MQTTUser, "SHELF_MQTT_USER")
	setString(&c.MQTTPassword, "SHELF_MQTT_PASSWORD")
	setString(&c.MQTTClientID, "SHELF_MQTT_CLIENT_ID")
	setBool(&c.MQTTDisabled, "SHELF_MQTT_DISABLED")

	// Bridge configuration
	setString(&c.TopicBase, "SHELF_TOPIC_BASE")
	setDuration(&c.ReconnectMinDelay, "SHELF_RECONNECT_MIN_DELAY")
	setDuration(&c.ReconnectMaxDelay, "SHELF_RECONNECT_MAX_DELAY")
	setDuration(&c.KeepAlive, "SHELF_KEEP_ALIVE")
	setDuration(&c.ConnectWait, "SHELF_CONNECT_WAIT")
	setDuration(&c.AckTimeout, "SHELF_ACK_TIMEOUT")
	setInt(&c.InboundQueueSize, "SHELF_INBOUND_QUEUE_SIZE")
	setString(&c.DisplayCurrency, "SHELF_DISPLAY_CURRENCY")

	setString(&c.StateBackend, "SHELF_STATE_BACKEND")

	// Redis configuration
	setString(&c.RedisHost, "SHELF_REDIS_HOST")
	setInt(&c.RedisPort, "SHELF_REDIS_PORT")
	setString(&c.RedisPassword, "SHELF_REDIS_PASSWORD")
	setInt(&c.RedisDB, "SHELF_REDIS_DB")

	// Postgres configuration
	setString(&c.PostgresHost, "SHELF_POSTGRES_HOST")
	setInt(&c.PostgresPort, "SHELF_POSTGRES_PORT")
	setString(&c.PostgresUser, "SHELF_POSTGRES_USER")
	setString(&c.PostgresPassword, "SHELF_POSTGRES_PASSWORD")
	setString(&c.PostgresDB, "SHELF_POSTGRES_DB")
	setString(&c.PostgresSSLMode, "SHELF_POSTGRES_SSLMODE")
	setInt(&c.PostgresMaxConnections, "SHELF_POSTGRES_MAX_CONNECTIONS")
	setInt(&c.PostgresMaxIdleConnections, "SHELF_POSTGRES_MAX_IDLE_CONNECTIONS")
	setDuration(&c.PostgresConnMaxLifetime, "SHELF_POSTGRES_CONN_MAX_LIFETIME")

	// Service configuration
	setString(&c.ServiceName, "SHELF_SERVICE_NAME")
	setInt(&c.HealthPort, "SHELF_HEALTH_PORT")
	setInt(&c.APIPort, "SHELF_API_PORT")
	setString(&c.LogLevel, "SHELF_LOG_LEVEL")
}

// RegisterFlags binds every option to fs using the current values as defaults
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID (generated when empty)")
	fs.BoolVar(&c.MQTTDisabled, "mqtt-disabled", c.MQTTDisabled, "Run without a message bus session")

	// Bridge flags
	fs.StringVar(&c.TopicBase, "topic-base", c.TopicBase, "Topic namespace prefix")
	fs.DurationVar(&c.ReconnectMinDelay, "reconnect-min-delay", c.ReconnectMinDelay, "Reconnect delay floor")
	fs.DurationVar(&c.ReconnectMaxDelay, "reconnect-max-delay", c.ReconnectMaxDelay, "Reconnect delay ceiling")
	fs.DurationVar(&c.KeepAlive, "keep-alive", c.KeepAlive, "MQTT keepalive interval")
	fs.DurationVar(&c.ConnectWait, "connect-wait", c.ConnectWait, "How long a command waits for the bus before publishing")
	fs.DurationVar(&c.AckTimeout, "ack-timeout", c.AckTimeout, "Default display acknowledgement timeout")
	fs.IntVar(&c.InboundQueueSize, "inbound-queue-size", c.InboundQueueSize, "Inbound message queue capacity")
	fs.StringVar(&c.DisplayCurrency, "display-currency", c.DisplayCurrency, "Currency code sent to displays")

	fs.StringVar(&c.StateBackend, "state-backend", c.StateBackend, "Shelf state store (redis, postgres, memory)")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	fs.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	fs.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	fs.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres user")
	fs.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	fs.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database")
	fs.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres sslmode")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.IntVar(&c.APIPort, "api-port", c.APIPort, "HTTP API port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to a YAML config file")
}

// ConfigFileFromArgs finds the --config path ahead of the full flag parse so the
// file can sit below env and flags in the hierarchy. SHELF_CONFIG_FILE is the fallback.
func ConfigFileFromArgs(args []string) string {
	var path string
	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "")
	_ = fs.Parse(args)

	if path == "" {
		path = os.Getenv("SHELF_CONFIG_FILE")
	}
	return path
}

// LoadFromFlags parses args and overrides config values
func (c *Config) LoadFromFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.TopicBase == "" {
		return fmt.Errorf("topic base is required")
	}
	if c.ReconnectMinDelay <= 0 {
		return fmt.Errorf("reconnect min delay must be positive")
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		return fmt.Errorf("reconnect max delay (%s) must not be below min delay (%s)", c.ReconnectMaxDelay, c.ReconnectMinDelay)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.ConnectWait < 0 {
		return fmt.Errorf("connect wait must not be negative")
	}
	if c.InboundQueueSize <= 0 {
		return fmt.Errorf("inbound queue size must be positive")
	}

	switch c.StateBackend {
	case BackendRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("Redis host is required")
		}
		if c.RedisPort <= 0 || c.RedisPort > 65535 {
			return fmt.Errorf("Redis port must be between 1 and 65535")
		}
	case BackendPostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return fmt.Errorf("Postgres host and database are required")
		}
		if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
			return fmt.Errorf("Postgres port must be between 1 and 65535")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid state backend: %s (must be redis, postgres, or memory)", c.StateBackend)
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns a lib/pq keyword/value DSN
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go duration strings ("1500ms") or bare seconds ("30")
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}
