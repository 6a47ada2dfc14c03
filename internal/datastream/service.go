package datastream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/events"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	appmetrics "github.com/dropDatabas3/datastreams/internal/metrics"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"github.com/dropDatabas3/datastreams/internal/shards"
	"go.uber.org/zap"
)

// Submitter es la parte del pipeline de cluster que usa el servicio.
type Submitter interface {
	SubmitStateUpdateTask(source string, task cluster.UpdateTask)
}

// ShardWaiter espera a que los shards de índices nuevos estén activos.
type ShardWaiter interface {
	WaitForActiveShards(indices []string, count shards.ActiveShardCount, timeout time.Duration, onResult func(bool))
}

// Service orquesta la creación de data streams sobre el pipeline del cluster.
type Service struct {
	cluster Submitter
	deps    Deps
	shards  ShardWaiter
	sink    events.Sink
	log     *zap.Logger
}

// Option configura el Service.
type Option func(*Service)

// WithEventSink fija el destino de los eventos informativos. Sin sink los
// eventos van al logger del servicio.
func WithEventSink(sink events.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger reemplaza el logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService crea el servicio.
func NewService(c Submitter, deps Deps, w ShardWaiter, opts ...Option) *Service {
	s := &Service{
		cluster: c,
		deps:    deps,
		shards:  w,
		log:     logger.Named("datastream"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sink == nil {
		s.sink = events.NewLogSink(s.log)
	}
	return s
}

// CreateDataStream encola la creación y vuelve de inmediato. onComplete se
// invoca una sola vez, desde otro goroutine:
//   - (AcknowledgedResponse{}, err) si la tarea falló o venció en cola;
//   - Acknowledged=false si se commiteó pero los nodos no confirmaron a tiempo;
//   - Acknowledged=true tras esperar shards activos (hasta AckTimeout), aunque
//     la espera venza: el data stream ya existe.
func (s *Service) CreateDataStream(ctx context.Context, req CreateDataStreamRequest, onComplete func(AcknowledgedResponse, error)) {
	req = req.withDefaults()
	if err := ctx.Err(); err != nil {
		go onComplete(AcknowledgedResponse{}, err)
		return
	}
	log := s.log.With(logger.DataStream(req.Name))

	// lo escribe la ejecución de la tarea, lo lee el ack
	var firstBackingIndex slot

	source := "create-data-stream [" + req.Name + "]"
	s.cluster.SubmitStateUpdateTask(source, &cluster.AckedRequest{
		Prio:          cluster.PriorityHigh,
		MasterTimeout: req.MasterNodeTimeout,
		AckWait:       req.AckTimeout,
		Run: func(current *metadata.ClusterState) (*metadata.ClusterState, error) {
			next, err := CreateDataStream(current, req, s.deps)
			if err != nil {
				return nil, err
			}
			ds, _ := next.Metadata.DataStream(req.Name)
			firstBackingIndex.set(ds.Indices[0].Name)
			return next, nil
		},
		Processed: func(_ string, _, newState *metadata.ClusterState) {
			index, _ := firstBackingIndex.get()
			s.emitCreated(req.Name, index, newState)
		},
		Listener: func(resp cluster.Response, err error) {
			if err != nil {
				appmetrics.DataStreamCreations.WithLabelValues("failed").Inc()
				if errs.IsInternal(err) {
					log.Error("failed to create data stream", logger.Err(err))
				} else {
					log.Debug("failed to create data stream", logger.Err(err))
				}
				onComplete(AcknowledgedResponse{}, err)
				return
			}
			if !resp.Acknowledged {
				appmetrics.DataStreamCreations.WithLabelValues("unacknowledged").Inc()
				onComplete(AcknowledgedResponse{Acknowledged: false}, nil)
				return
			}
			index, ok := firstBackingIndex.get()
			if !ok {
				appmetrics.DataStreamCreations.WithLabelValues("failed").Inc()
				onComplete(AcknowledgedResponse{}, errs.Internal("data stream [%s] committed without a backing index", req.Name))
				return
			}
			s.shards.WaitForActiveShards([]string{index}, shards.Default, req.AckTimeout, func(ready bool) {
				if !ready {
					log.Info("timed out waiting for active shards of data stream, reporting success",
						logger.Index(index), logger.Duration(req.AckTimeout))
				}
				appmetrics.DataStreamCreations.WithLabelValues("acknowledged").Inc()
				onComplete(AcknowledgedResponse{Acknowledged: true}, nil)
			})
		},
	})
}

// Create es la variante bloqueante de CreateDataStream: espera el resultado o ctx.
func (s *Service) Create(ctx context.Context, req CreateDataStreamRequest) (AcknowledgedResponse, error) {
	type result struct {
		resp AcknowledgedResponse
		err  error
	}
	ch := make(chan result, 1)
	s.CreateDataStream(ctx, req, func(resp AcknowledgedResponse, err error) { ch <- result{resp, err} })
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return AcknowledgedResponse{}, ctx.Err()
	}
}

// ApplyToState aplica la creación sobre un estado dado, sin pasar por el
// pipeline ni esperar acks. Útil para preparar estados offline.
func (s *Service) ApplyToState(req CreateDataStreamRequest, current *metadata.ClusterState) (*metadata.ClusterState, error) {
	return CreateDataStream(current, req.withDefaults(), s.deps)
}

func (s *Service) emitCreated(name, index string, st *metadata.ClusterState) {
	ev := events.Event{
		Type:         events.TypeDataStreamCreated,
		DataStream:   name,
		Index:        index,
		Message:      "adding data stream [" + name + "]",
		StateVersion: st.Version,
		Time:         time.Now(),
	}
	if err := s.sink.Emit(context.Background(), ev); err != nil {
		s.log.Warn("failed to emit data stream event", logger.DataStream(name), logger.Err(err))
	}
}

// slot es un valor de asignación única: set sólo tiene efecto la primera vez.
type slot struct {
	p atomic.Pointer[string]
}

func (s *slot) set(v string) bool { return s.p.CompareAndSwap(nil, &v) }

func (s *slot) get() (string, bool) {
	v := s.p.Load()
	if v == nil {
		return "", false
	}
	return *v, true
}
