package shards

import (
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	appmetrics "github.com/dropDatabas3/datastreams/internal/metrics"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"go.uber.org/zap"
)

// StateSource es la vista del cluster que necesita el observer.
type StateSource interface {
	State() *metadata.ClusterState
	AddListener(l cluster.Listener) (remove func())
}

// ActiveShardsObserver espera, sin bloquear al llamador, a que haya shards activos.
type ActiveShardsObserver struct {
	cluster StateSource
	log     *zap.Logger
}

// NewActiveShardsObserver crea el observer.
func NewActiveShardsObserver(c StateSource) *ActiveShardsObserver {
	return &ActiveShardsObserver{cluster: c, log: logger.Named("shards")}
}

// WaitForActiveShards invoca onResult una sola vez: true cuando los índices
// alcanzan count, false si vence timeout antes. Si ya se cumple, onResult corre
// en el goroutine del llamador; si no, en el del cluster o el del timer.
func (o *ActiveShardsObserver) WaitForActiveShards(indices []string, count ActiveShardCount, timeout time.Duration, onResult func(bool)) {
	if count == None {
		onResult(true)
		return
	}

	var (
		once   sync.Once
		remove func()
		timer  *time.Timer
		mu     sync.Mutex
	)
	finish := func(ok bool) {
		once.Do(func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			r := remove
			mu.Unlock()
			if r != nil {
				r()
			}
			result := "ready"
			if !ok {
				result = "timeout"
				o.log.Debug("timed out waiting for active shards",
					logger.String("indices", strings.Join(indices, ",")),
					logger.String("wait_for_active_shards", count.String()),
					logger.Duration(timeout))
			}
			appmetrics.ActiveShardWaits.WithLabelValues(result).Inc()
			onResult(ok)
		})
	}

	// suscribirse antes de mirar el estado actual: no perder un cambio intermedio
	r := o.cluster.AddListener(func(ev cluster.ChangedEvent) {
		if count.EnoughShardsActive(ev.State, indices...) {
			go finish(true)
		}
	})
	mu.Lock()
	remove = r
	mu.Unlock()

	if count.EnoughShardsActive(o.cluster.State(), indices...) {
		finish(true)
		return
	}
	if timeout <= 0 {
		finish(false)
		return
	}
	mu.Lock()
	timer = time.AfterFunc(timeout, func() { finish(false) })
	mu.Unlock()
}
