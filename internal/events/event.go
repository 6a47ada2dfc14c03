// Package events publica eventos informativos del ciclo de vida de data streams
// (log, Redis Streams, email).
package events

import (
	"context"
	"errors"
	"time"
)

// Tipos de evento.
const (
	TypeDataStreamCreated = "data_stream_created"
)

// Event es un evento informativo. No forma parte del cluster state.
type Event struct {
	Type         string    `json:"type"`
	DataStream   string    `json:"data_stream,omitempty"`
	Index        string    `json:"index,omitempty"`
	Message      string    `json:"message"`
	StateVersion int64     `json:"state_version"`
	Time         time.Time `json:"time"`
}

// Sink recibe eventos.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Multi reparte cada evento a todos los sinks; los errores se combinan.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var out []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			out = append(out, err)
		}
	}
	return errors.Join(out...)
}
