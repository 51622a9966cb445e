// Package redisutil dials the Redis instance that backs the failure ledger.
package redisutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	envRedisTLSCA         = "REDIS_TLS_CA"
	envRedisTLSCert       = "REDIS_TLS_CERT"
	envRedisTLSKey        = "REDIS_TLS_KEY"
	envRedisTLSInsecure   = "REDIS_TLS_INSECURE"
	envRedisTLSServerName = "REDIS_TLS_SERVER_NAME"

	pingTimeout = 2 * time.Second
)

// Connect parses url, applies TLS settings from the environment and pings the
// server before returning the client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url required")
	}
	opts, err := ParseOptions(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// ParseOptions parses a Redis URL and applies TLS settings from the environment.
func ParseOptions(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	settings := tlsSettingsFromEnv()
	if settings.empty() {
		return opts, nil
	}
	cfg, err := settings.apply(opts.TLSConfig)
	if err != nil {
		return nil, err
	}
	opts.TLSConfig = cfg
	return opts, nil
}

type tlsSettings struct {
	caPath     string
	certPath   string
	keyPath    string
	serverName string
	insecure   bool
}

func tlsSettingsFromEnv() tlsSettings {
	return tlsSettings{
		caPath:     strings.TrimSpace(os.Getenv(envRedisTLSCA)),
		certPath:   strings.TrimSpace(os.Getenv(envRedisTLSCert)),
		keyPath:    strings.TrimSpace(os.Getenv(envRedisTLSKey)),
		serverName: strings.TrimSpace(os.Getenv(envRedisTLSServerName)),
		insecure:   parseBoolEnv(envRedisTLSInsecure),
	}
}

func (s tlsSettings) empty() bool {
	return s.caPath == "" && s.certPath == "" && s.keyPath == "" && s.serverName == "" && !s.insecure
}

func (s tlsSettings) apply(existing *tls.Config) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if existing != nil {
		cfg = existing.Clone()
	}
	if s.serverName != "" {
		cfg.ServerName = s.serverName
	}
	if s.insecure {
		// #nosec G402 -- opt-in for local test instances.
		cfg.InsecureSkipVerify = true
	}
	if s.caPath != "" {
		// #nosec G304 -- path comes from operator configuration.
		pem, err := os.ReadFile(s.caPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls ca read: %w", err)
		}
		pool := cfg.RootCAs
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("redis tls ca parse: %s", s.caPath)
		}
		cfg.RootCAs = pool
	}
	if s.certPath != "" || s.keyPath != "" {
		if s.certPath == "" || s.keyPath == "" {
			return nil, errors.New("redis tls cert/key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
