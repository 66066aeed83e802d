// Package notifier delivers workflow progress events to logs and brokers.
package notifier

import (
	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/pkg/log"
)

// LogSink writes every event to logger at the event's level.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Std()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e core.Event) {
	kv := []any{"phase", string(e.Phase), "session", e.Session}
	if e.Device != "" {
		kv = append(kv, "device", e.Device)
	}
	if e.Outcome != "" {
		kv = append(kv, "outcome", e.Outcome)
	}

	switch e.Level {
	case core.LevelDebug:
		s.logger.Debug(e.Message, kv...)
	case core.LevelWarn:
		s.logger.Warn(e.Message, kv...)
	case core.LevelError:
		s.logger.Error(nil, e.Message, kv...)
	default:
		s.logger.Info(e.Message, kv...)
	}
}
