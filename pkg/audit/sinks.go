package audit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// NopSink discards every event.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, *Event) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }

// LogrusSink writes events as structured log entries.
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink wraps a logrus logger as an audit sink. A nil logger gets the
// standard logger with JSON formatting.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &LogrusSink{logger: logger}
}

// Record implements Sink.
func (s *LogrusSink) Record(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":  true,
		"type":   event.Type,
		"status": event.Status,
	}
	if event.RealmID != "" {
		fields["realm_id"] = event.RealmID
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.TokenID != "" {
		fields["token_id"] = event.TokenID
	}
	if event.Resource != "" {
		fields["resource"] = event.Resource
	}
	for k, v := range event.Details {
		fields["detail_"+k] = v
	}

	entry := s.logger.WithContext(ctx).WithFields(fields).WithTime(event.Timestamp)
	switch event.Status {
	case StatusFailure, StatusDenied:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}

// Close implements Sink.
func (s *LogrusSink) Close() error { return nil }

// MultiSink fans events out to several sinks. The first error wins but every
// sink still sees the event.
type MultiSink struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewMultiSink composes sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record implements Sink.
func (m *MultiSink) Record(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, s := range m.sinks {
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Sink.
func (m *MultiSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
