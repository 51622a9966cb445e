package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost        = "localhost"
	defaultPort        = 8080
	defaultRoot        = "cordum-bak"
	defaultNatsSubject = "cordum.import.results"

	envHost              = "IMPORT_HOST"
	envPort              = "IMPORT_PORT"
	envRoot              = "IMPORT_ROOT"
	envAPIKey            = "IMPORT_API_KEY"
	envHTTPTimeout       = "IMPORT_HTTP_TIMEOUT"
	envHonorFactsVersion = "IMPORT_HONOR_FACTS_VERSION"
	envRedisURL          = "REDIS_URL"
	envNatsURL           = "NATS_URL"
	envNatsSubject       = "IMPORT_NATS_SUBJECT"
	envPushgatewayURL    = "IMPORT_PUSHGATEWAY_URL"
)

// Import holds runtime configuration for an import run. Redis, NATS and the
// Pushgateway are optional; an empty URL disables the integration.
type Import struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Root              string        `yaml:"root"`
	APIKey            string        `yaml:"api_key"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	HonorFactsVersion bool          `yaml:"honor_facts_version"`
	RedisURL          string        `yaml:"redis_url"`
	NatsURL           string        `yaml:"nats_url"`
	NatsSubject       string        `yaml:"nats_subject"`
	PushgatewayURL    string        `yaml:"pushgateway_url"`
}

// Default returns the built-in configuration.
func Default() *Import {
	return &Import{
		Host:        defaultHost,
		Port:        defaultPort,
		Root:        defaultRoot,
		NatsSubject: defaultNatsSubject,
	}
}

// Load layers defaults, the optional YAML file at path and the environment,
// in that order. Callers apply their own overrides and then call Validate.
func Load(path string) (*Import, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		// #nosec G304 -- config path is provided by the local operator.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.merge(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Import) merge(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Import) applyEnv() error {
	if v := envString(envHost); v != "" {
		c.Host = v
	}
	if v := envString(envPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a port number", envPort, v)
		}
		c.Port = port
	}
	if v := envString(envRoot); v != "" {
		c.Root = v
	}
	if v := envString(envAPIKey); v != "" {
		c.APIKey = v
	}
	if v := envString(envHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envHTTPTimeout, err)
		}
		c.HTTPTimeout = d
	}
	if v := envString(envHonorFactsVersion); v != "" {
		c.HonorFactsVersion = parseBool(v)
	}
	if v := envString(envRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := envString(envNatsURL); v != "" {
		c.NatsURL = v
	}
	if v := envString(envNatsSubject); v != "" {
		c.NatsSubject = v
	}
	if v := envString(envPushgatewayURL); v != "" {
		c.PushgatewayURL = v
	}
	return nil
}

// Validate checks the endpoint preconditions.
func (c *Import) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.Root) == "" {
		return errors.New("export root required")
	}
	if c.HTTPTimeout < 0 {
		return errors.New("http timeout must not be negative")
	}
	if c.NatsURL != "" && strings.TrimSpace(c.NatsSubject) == "" {
		return errors.New("nats subject required when nats url is set")
	}
	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
