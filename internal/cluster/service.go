package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	appmetrics "github.com/dropDatabas3/datastreams/internal/metrics"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"go.uber.org/zap"
)

// defaultPublishTimeout acota el commit de un estado ya calculado.
const defaultPublishTimeout = 30 * time.Second

const (
	taskQueued int32 = iota
	taskRunning
	taskTimedOut
)

type pendingTask struct {
	source    string
	task      UpdateTask
	st        atomic.Int32
	timer     *time.Timer
	submitted time.Time
}

// Service es el único escritor del cluster state.
//
// Las tareas se ejecutan de a una, en orden de envío, contra el último estado
// aplicado. El estado resultante se publica (commit) y recién entonces pasa a ser
// visible con State(): los lectores ven el estado anterior o el nuevo, nunca uno
// parcial.
type Service struct {
	publisher      Publisher
	publishTimeout time.Duration
	log            *zap.Logger

	state atomic.Pointer[metadata.ClusterState]

	mu     sync.Mutex
	queue  []*pendingTask
	closed bool
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	start  sync.Once

	// applyMu serializa la aplicación de estados commiteados y la notificación a listeners.
	applyMu sync.Mutex

	lmu       sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// Option configura el Service.
type Option func(*Service)

// WithPublishTimeout fija el timeout de publicación.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithLogger reemplaza el logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService crea el servicio con el estado inicial. Llamar Start para procesar tareas.
func NewService(initial *metadata.ClusterState, pub Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = LocalPublisher{}
	}
	s := &Service{
		publisher:      pub,
		publishTimeout: defaultPublishTimeout,
		log:            logger.Named("cluster"),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
		exited:         make(chan struct{}),
		listeners:      map[uint64]Listener{},
	}
	for _, o := range opts {
		o(s)
	}
	s.state.Store(initial)
	return s
}

// SetPublisher reemplaza el publisher. Llamar antes de Start.
func (s *Service) SetPublisher(p Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// Start lanza el goroutine escritor. Es idempotente.
func (s *Service) Start() {
	s.start.Do(func() { go s.run() })
}

// Close detiene el escritor; las tareas pendientes fallan con ErrServiceClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	close(s.done)
	s.mu.Unlock()

	for _, p := range pending {
		if p.st.CompareAndSwap(taskQueued, taskTimedOut) {
			stopTimer(p)
			p.task.OnFailure(p.source, ErrServiceClosed)
		}
	}
	appmetrics.ClusterPendingTasks.Set(0)
	started := true
	s.start.Do(func() { started = false })
	if started {
		<-s.exited
	}
	return nil
}

// State devuelve el último estado aplicado.
func (s *Service) State() *metadata.ClusterState {
	return s.state.Load()
}

// AddListener registra un listener y devuelve la función para quitarlo.
func (s *Service) AddListener(l Listener) (remove func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// SubmitStateUpdateTask encola la tarea. Nunca bloquea y nunca invoca los
// callbacks de la tarea en el goroutine de quien envía.
func (s *Service) SubmitStateUpdateTask(source string, task UpdateTask) {
	p := &pendingTask{source: source, task: task, submitted: time.Now()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go task.OnFailure(source, ErrServiceClosed)
		return
	}
	if d := task.Timeout(); d > 0 {
		p.timer = time.AfterFunc(d, func() {
			if p.st.CompareAndSwap(taskQueued, taskTimedOut) {
				s.log.Debug("cluster task timed out in queue", logger.Source(source), logger.Duration(d))
				task.OnFailure(source, fmt.Errorf("%w: (%s) within %s", ErrProcessClusterEventTimeout, source, d))
			}
		})
	}
	s.queue = append(s.queue, p)
	appmetrics.ClusterPendingTasks.Set(float64(len(s.queue)))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) next() (*pendingTask, bool) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		if len(s.queue) > 0 {
			p := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			appmetrics.ClusterPendingTasks.Set(float64(len(s.queue)))
			s.mu.Unlock()
			return p, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
		}
	}
}

func (s *Service) run() {
	defer close(s.exited)
	for {
		p, ok := s.next()
		if !ok {
			return
		}
		if !p.st.CompareAndSwap(taskQueued, taskRunning) {
			continue // venció en cola, ya se notificó
		}
		stopTimer(p)
		s.runTask(p)
	}
}

func stopTimer(p *pendingTask) {
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (s *Service) runTask(p *pendingTask) {
	start := time.Now()
	prio := p.task.Priority().String()
	log := s.log.With(logger.Source(p.source), logger.Priority(prio))

	prev := s.State()
	next, err := s.execute(p, prev)
	if err != nil {
		appmetrics.ClusterTaskDuration.WithLabelValues(prio, "failed").Observe(time.Since(start).Seconds())
		log.Debug("cluster task failed", logger.Err(err))
		p.task.OnFailure(p.source, err)
		return
	}

	if next == prev {
		appmetrics.ClusterTaskDuration.WithLabelValues(prio, "unchanged").Observe(time.Since(start).Seconds())
		if pl, ok := p.task.(ProcessedListener); ok {
			pl.ClusterStateProcessed(p.source, prev, prev)
		}
		if at, ok := p.task.(AckedTask); ok {
			at.OnAckResult(true)
		}
		return
	}

	published := next.WithNextVersion(prev)
	timeout, bounded := s.commitTimeout(p)
	if timeout <= 0 {
		appmetrics.ClusterTaskDuration.WithLabelValues(prio, "timed_out").Observe(time.Since(start).Seconds())
		p.task.OnFailure(p.source, fmt.Errorf("%w: (%s) within %s", ErrProcessClusterEventTimeout, p.source, p.task.Timeout()))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err = s.publisher.Publish(ctx, p.source, published)
	expired := bounded && errors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if expired {
			err = fmt.Errorf("%w: (%s) not committed within %s: %w", ErrProcessClusterEventTimeout, p.source, p.task.Timeout(), err)
		}
		appmetrics.ClusterTaskDuration.WithLabelValues(prio, "publish_failed").Observe(time.Since(start).Seconds())
		log.Warn("failed to publish cluster state", logger.StateVersion(published.Version), logger.Err(err))
		p.task.OnFailure(p.source, fmt.Errorf("%w [%d]: %w", ErrPublishFailed, published.Version, err))
		return
	}

	s.ApplyCommitted(p.source, published)
	appmetrics.ClusterTaskDuration.WithLabelValues(prio, "committed").Observe(time.Since(start).Seconds())
	log.Debug("cluster state committed",
		logger.StateVersion(published.Version),
		logger.StateUUID(published.StateUUID),
		logger.Duration(time.Since(start)))

	if pl, ok := p.task.(ProcessedListener); ok {
		pl.ClusterStateProcessed(p.source, prev, published)
	}
	if at, ok := p.task.(AckedTask); ok {
		go s.waitForAck(at, published)
	}
}

// commitTimeout acota la publicación por lo que le queda a la tarea de su
// Timeout (medido desde el envío) o por publishTimeout, lo menor. bounded indica
// que manda el de la tarea.
func (s *Service) commitTimeout(p *pendingTask) (d time.Duration, bounded bool) {
	t := p.task.Timeout()
	if t <= 0 {
		return s.publishTimeout, false
	}
	if left := t - time.Since(p.submitted); left < s.publishTimeout {
		return left, true
	}
	return s.publishTimeout, false
}

// execute corre la transición atrapando panics: una transición que entra en
// pánico es un bug y se reporta como violación de consistencia interna.
func (s *Service) execute(p *pendingTask, current *metadata.ClusterState) (next *metadata.ClusterState, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = errs.Internal("cluster task [%s] panicked: %v", p.source, r)
		}
	}()
	next, err = p.task.Execute(current)
	if err == nil && next == nil {
		err = errs.Internal("cluster task [%s] returned a nil state", p.source)
	}
	return next, err
}

func (s *Service) waitForAck(at AckedTask, st *metadata.ClusterState) {
	ctx := context.Background()
	if d := at.AckTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	at.OnAckResult(s.publisher.WaitForAck(ctx, st))
}

// ApplyCommitted instala un estado ya commiteado y notifica a los listeners.
// Es idempotente por versión: estados viejos o repetidos se ignoran (el leader
// lo recibe dos veces, desde el FSM y desde el escritor).
func (s *Service) ApplyCommitted(source string, st *metadata.ClusterState) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	prev := s.state.Load()
	if prev != nil && st.Version <= prev.Version {
		return false
	}
	s.state.Store(st)
	appmetrics.ClusterStateVersion.Set(float64(st.Version))

	ev := ChangedEvent{Source: source, Previous: prev, State: st}
	for _, l := range s.snapshotListeners() {
		l(ev)
	}
	return true
}

func (s *Service) snapshotListeners() []Listener {
	s.lmu.RLock()
	defer s.lmu.RUnlock()
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
