package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// DefaultStream es el stream de Redis donde se publican los eventos.
const DefaultStream = "datastreams:events"

// streamAdder es la parte del cliente de Redis que usa el sink.
type streamAdder interface {
	XAdd(ctx context.Context, a *rdb.XAddArgs) *rdb.StringCmd
}

// RedisSink publica eventos en un Redis Stream (XADD) acotado por MaxLen.
type RedisSink struct {
	c      streamAdder
	stream string
	maxLen int64
}

// RedisConfig configura el sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// NewRedisSink crea el cliente y el sink. Devuelve también el cliente para cerrarlo.
func NewRedisSink(cfg RedisConfig) (*RedisSink, *rdb.Client) {
	c := rdb.NewClient(&rdb.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return newRedisSink(c, cfg.Stream, cfg.MaxLen), c
}

func newRedisSink(c streamAdder, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{c: c, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Emit(ctx context.Context, ev Event) error {
	err := s.c.XAdd(ctx, &rdb.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":          ev.Type,
			"data_stream":   ev.DataStream,
			"index":         ev.Index,
			"message":       ev.Message,
			"state_version": strconv.FormatInt(ev.StateVersion, 10),
			"time":          ev.Time.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}
