package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/badhabitcaps/poker-web/websocket"
)

const (
	DefaultPort     = 3001
	DefaultLogLevel = "info"
)

// Config holds the relay settings. Values come from defaults, then the
// optional YAML file, then environment variables.
type Config struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogFile   string          `yaml:"log_file"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

type WebsocketConfig struct {
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// KafkaConfig enables the ingest consumer when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) WebsocketSettings() websocket.Settings {
	return websocket.Settings{
		WriteWait:      c.Websocket.WriteWait,
		PongWait:       c.Websocket.PongWait,
		MaxMessageSize: c.Websocket.MaxMessageBytes,
		SendBuffer:     c.Websocket.SendBuffer,
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	slog.Debug("config loaded", "path", path, "addr", cfg.Addr(), "kafka", cfg.Kafka.Enabled())
	return cfg, nil
}

func defaults() *Config {
	ws := websocket.DefaultSettings()
	return &Config{
		Port:     DefaultPort,
		LogLevel: DefaultLogLevel,
		Websocket: WebsocketConfig{
			WriteWait:       ws.WriteWait,
			PongWait:        ws.PongWait,
			MaxMessageBytes: ws.MaxMessageSize,
			SendBuffer:      ws.SendBuffer,
		},
		Kafka: KafkaConfig{
			Topic: "relay-events",
		},
	}
}

func applyEnv(cfg *Config) error {
	cfg.Host = getEnvOrDefault("RELAY_HOST", cfg.Host)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnvOrDefault("RELAY_LOG_FILE", cfg.LogFile)
	cfg.Kafka.Topic = getEnvOrDefault("RELAY_KAFKA_TOPIC", cfg.Kafka.Topic)

	if v := os.Getenv("RELAY_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", cfg.Port); err != nil {
		return err
	}
	if cfg.Websocket.SendBuffer, err = getEnvInt("RELAY_WS_SEND_BUFFER", cfg.Websocket.SendBuffer); err != nil {
		return err
	}
	maxBytes, err := getEnvInt("RELAY_WS_MAX_MESSAGE_BYTES", int(cfg.Websocket.MaxMessageBytes))
	if err != nil {
		return err
	}
	cfg.Websocket.MaxMessageBytes = int64(maxBytes)
	if cfg.Websocket.WriteWait, err = getEnvDuration("RELAY_WS_WRITE_WAIT", cfg.Websocket.WriteWait); err != nil {
		return err
	}
	if cfg.Websocket.PongWait, err = getEnvDuration("RELAY_WS_PONG_WAIT", cfg.Websocket.PongWait); err != nil {
		return err
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is out of range [1, 65535]", cfg.Port)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Websocket.WriteWait <= 0 {
		return fmt.Errorf("websocket.write_wait must be positive")
	}
	if cfg.Websocket.PongWait <= 0 {
		return fmt.Errorf("websocket.pong_wait must be positive")
	}
	if cfg.Websocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("websocket.max_message_bytes must be positive")
	}
	if cfg.Websocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive")
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
