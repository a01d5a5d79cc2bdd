package execlog

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where finalized run entries are mirrored.
const DefaultSubject = "platewise.execlog.entry"

// Mirror publishes finalized execution log entries to NATS so external
// observers can collect run telemetry. It is optional: publish failures are
// logged and never affect the pipeline.
type Mirror struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithSubject overrides the publish subject.
func WithSubject(subject string) MirrorOption {
	return func(m *Mirror) {
		if subject != "" {
			m.subject = subject
		}
	}
}

// WithMirrorLogger sets the logger.
func WithMirrorLogger(logger *slog.Logger) MirrorOption {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// NewMirror connects to NATS and returns a Mirror.
func NewMirror(url string, opts ...MirrorOption) (*Mirror, error) {
	nc, err := nats.Connect(url, nats.Name("platewise-execlog"))
	if err != nil {
		return nil, err
	}

	m := &Mirror{
		nc:      nc,
		subject: DefaultSubject,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Publish mirrors one finalized entry. Fits the Store's finalize hook.
func (m *Mirror) Publish(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		m.logger.Warn("Failed to encode execution log entry",
			"request_id", entry.RequestID,
			"error", err)
		return
	}

	if err := m.nc.Publish(m.subject, data); err != nil {
		m.logger.Warn("Failed to mirror execution log entry",
			"request_id", entry.RequestID,
			"subject", m.subject,
			"error", err)
	}
}

// Close drains the connection.
func (m *Mirror) Close() {
	if m.nc != nil {
		m.nc.Close()
	}
}
