// Package bus publishes import results to NATS for external observers.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cordum/cordum-import/core/infra/logging"
)

const (
	envUseJetStream = "NATS_USE_JETSTREAM"
	envJSMaxAge     = "NATS_JS_MAX_AGE"

	defaultMaxAge = 7 * 24 * time.Hour
	flushTimeout  = 5 * time.Second

	streamImport = "CORDUM_IMPORT"
)

var (
	errNilBus     = errors.New("nats bus not initialized")
	errEmptyTopic = errors.New("empty subject")
)

// NatsBus is a publish-only NATS connection. When JetStream is enabled the
// results subject is captured in a stream and messages carry an id so
// republishing the same entry of the same run is deduplicated.
type NatsBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	jsEnabled bool
}

// NewNatsBus dials NATS at url. subject is captured in a JetStream stream when
// NATS_USE_JETSTREAM is set.
func NewNatsBus(url, subject string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("cordum-import"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn("bus", "disconnected from nats", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to nats", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	b := &NatsBus{nc: nc}
	if jetStreamEnabled() {
		b.initJetStream(subject)
	}
	return b, nil
}

// Close flushes pending messages and closes the connection.
func (b *NatsBus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.FlushTimeout(flushTimeout); err != nil {
		logging.Warn("bus", "flush before close failed", "error", err)
	}
	b.nc.Close()
}

// Publish sends data on subject. msgID is used for JetStream deduplication
// and ignored on plain NATS.
func (b *NatsBus) Publish(subject, msgID string, data []byte) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if b.jsEnabled {
		var opts []nats.PubOpt
		if msgID != "" {
			opts = append(opts, nats.MsgId(msgID))
		}
		_, err := b.js.Publish(subject, data, opts...)
		return err
	}
	return b.nc.Publish(subject, data)
}

// PublishJSON encodes v as JSON and publishes it.
func (b *NatsBus) PublishJSON(subject, msgID string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return b.Publish(subject, msgID, data)
}

// Encode renders a result event.
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, errors.New("nil event")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// JetStream reports whether publishes go through JetStream.
func (b *NatsBus) JetStream() bool {
	return b != nil && b.jsEnabled
}

func jetStreamEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envUseJetStream))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func streamMaxAge() time.Duration {
	if v := strings.TrimSpace(os.Getenv(envJSMaxAge)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultMaxAge
}

func (b *NatsBus) initJetStream(subject string) {
	js, err := b.nc.JetStream()
	if err != nil {
		logging.Warn("bus", "jetstream init failed", "error", err)
		return
	}
	if _, err := js.AccountInfo(); err != nil {
		logging.Warn("bus", "jetstream not available", "error", err)
		return
	}
	maxAge := streamMaxAge()
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       streamImport,
		Subjects:   []string{subject},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		MaxAge:     maxAge,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		// The stream may already exist.
		if _, infoErr := js.StreamInfo(streamImport); infoErr != nil {
			logging.Warn("bus", "jetstream ensure stream failed", "stream", streamImport, "error", err)
			return
		}
	}
	b.js = js
	b.jsEnabled = true
	logging.Info("bus", "jetstream enabled", "stream", streamImport, "subject", subject, "max_age", maxAge)
}

// MessageID builds the deduplication id of one entry of one run.
func MessageID(runID, path string) string {
	if runID == "" || path == "" {
		return ""
	}
	return runID + ":" + path
}
