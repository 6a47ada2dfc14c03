package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent() Event {
	return Event{
		Type:         TypeDataStreamCreated,
		DataStream:   "logs-app",
		Index:        ".ds-logs-app-000001",
		Message:      "adding data stream [logs-app]",
		StateVersion: 7,
		Time:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type fakeXAdd struct {
	args []*rdb.XAddArgs
	err  error
}

func (f *fakeXAdd) XAdd(_ context.Context, a *rdb.XAddArgs) *rdb.StringCmd {
	f.args = append(f.args, a)
	return rdb.NewStringResult("1-0", f.err)
}

func TestRedisSink_XAdd(t *testing.T) {
	f := &fakeXAdd{}
	s := newRedisSink(f, "", 0)
	require.NoError(t, s.Emit(context.Background(), sampleEvent()))

	require.Len(t, f.args, 1)
	a := f.args[0]
	assert.Equal(t, DefaultStream, a.Stream)
	assert.True(t, a.Approx)
	values := a.Values.(map[string]any)
	assert.Equal(t, "logs-app", values["data_stream"])
	assert.Equal(t, "7", values["state_version"])

	f.err = errors.New("down")
	assert.ErrorContains(t, s.Emit(context.Background(), sampleEvent()), "redis xadd")
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core))
	require.NoError(t, s.Emit(context.Background(), sampleEvent()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "adding data stream [logs-app]", entries[0].Message)
	assert.Equal(t, "logs-app", entries[0].ContextMap()["data_stream"])
}

func TestSMTPSink_Message(t *testing.T) {
	var sent []*mail.Message
	s := NewSMTPSink(SMTPConfig{Host: "localhost", Port: 25, From: "ops@example.com", To: []string{"a@example.com"}})
	s.send = func(m *mail.Message) error {
		sent = append(sent, m)
		return nil
	}
	require.NoError(t, s.Emit(context.Background(), sampleEvent()))
	require.Len(t, sent, 1)

	var buf bytes.Buffer
	_, err := sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: [datastreams] adding data stream [logs-app]")
	assert.Contains(t, buf.String(), "backing index: .ds-logs-app-000001")

	// sin destinatarios no envía nada
	s.cfg.To = nil
	require.NoError(t, s.Emit(context.Background(), sampleEvent()))
	assert.Len(t, sent, 1)
}

type recordingSink struct {
	mu  sync.Mutex
	evs []Event
	err error
}

func (r *recordingSink) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("boom")}
	err := Multi{ok, nil, bad}.Emit(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
}

func TestDispatcher_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	rec := &recordingSink{}
	d := NewDispatcher(rec, 16)
	for i := 0; i < 5; i++ {
		ev := sampleEvent()
		ev.StateVersion = int64(i)
		require.NoError(t, d.Emit(context.Background(), ev))
	}
	require.NoError(t, d.Close())

	require.Equal(t, 5, rec.count())
	for i, ev := range rec.evs {
		assert.Equal(t, int64(i), ev.StateVersion)
	}
	require.ErrorIs(t, d.Emit(context.Background(), sampleEvent()), ErrDispatcherClosed)
	assert.Equal(t, 5, rec.count())
}

func TestDispatcher_EmitRacingCloseIsNeverLost(t *testing.T) {
	for round := 0; round < 50; round++ {
		rec := &recordingSink{}
		d := NewDispatcher(rec, 1024)

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if d.Emit(context.Background(), sampleEvent()) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		require.NoError(t, d.Close())
		wg.Wait()

		require.Equal(t, int(accepted.Load()), rec.count(), "round %d", round)
	}
}
