package metrics

import "github.com/prometheus/client_golang/prometheus"

// Métricas de creación de data streams.
var (
	DataStreamCreations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "data_stream_create_total",
		Help: "Creaciones de data streams por resultado (acknowledged|unacknowledged|failed)",
	}, []string{"result"})

	ActiveShardWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "active_shards_wait_total",
		Help: "Esperas de shards activos por resultado (ready|timeout)",
	}, []string{"result"})
)

// RegisterDataStreams registra las métricas de data streams.
func RegisterDataStreams(reg prometheus.Registerer) error {
	return register(reg, DataStreamCreations, ActiveShardWaits)
}

// RegisterAll registra todas las métricas del proceso.
func RegisterAll(reg prometheus.Registerer) error {
	if err := RegisterRaft(reg); err != nil {
		return err
	}
	if err := RegisterCluster(reg); err != nil {
		return err
	}
	return RegisterDataStreams(reg)
}
