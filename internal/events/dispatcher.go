package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"go.uber.org/zap"
)

// ErrDispatcherClosed lo devuelve Emit después de Close.
var ErrDispatcherClosed = errors.New("events: dispatcher closed")

// Dispatcher desacopla a quien emite de sinks lentos (red): Emit encola y un
// único goroutine entrega en orden. Si la cola está llena el evento se descarta.
type Dispatcher struct {
	sink    Sink
	ch      chan Event
	timeout time.Duration
	log     *zap.Logger

	// mu ordena Emit contra Close: ningún envío entra a ch después de que
	// loop empezó a drenar.
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewDispatcher crea y arranca el dispatcher. size<=0 usa 1024.
func NewDispatcher(sink Sink, size int) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	d := &Dispatcher{
		sink:    sink,
		ch:      make(chan Event, size),
		timeout: 5 * time.Second,
		log:     logger.Named("events"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Emit encola el evento. Nunca bloquea.
func (d *Dispatcher) Emit(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.ch <- ev:
	default:
		d.log.Warn("event queue full; dropping event", logger.String("event", ev.Type), logger.DataStream(ev.DataStream))
	}
	return nil
}

// Close entrega lo encolado y detiene el goroutine.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
	}
	d.mu.Unlock()
	<-d.done
	return nil
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Emit(ctx, ev); err != nil {
		d.log.Warn("event delivery failed", logger.String("event", ev.Type), logger.Err(err))
	}
}
