package events

import (
	"context"

	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"go.uber.org/zap"
)

// LogSink escribe cada evento como una línea INFO.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink crea el sink. l nil usa el logger global.
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = logger.Named("events")
	}
	return &LogSink{log: l}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	fields := []zap.Field{
		logger.String("event", ev.Type),
		logger.StateVersion(ev.StateVersion),
	}
	if ev.DataStream != "" {
		fields = append(fields, logger.DataStream(ev.DataStream))
	}
	if ev.Index != "" {
		fields = append(fields, logger.Index(ev.Index))
	}
	s.log.Info(ev.Message, fields...)
	return nil
}
