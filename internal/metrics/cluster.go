package metrics

import "github.com/prometheus/client_golang/prometheus"

// Métricas del pipeline de actualización del cluster state.
var (
	ClusterTaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cluster_state_task_duration_seconds",
		Help:    "Tiempo de ejecución + publicación de una tarea de cluster state",
		Buckets: prometheus.DefBuckets,
	}, []string{"priority", "outcome"})

	ClusterPendingTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cluster_state_pending_tasks",
		Help: "Tareas encoladas esperando al single-writer",
	})

	ClusterStateVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cluster_state_version",
		Help: "Versión del último cluster state aplicado",
	})
)

// RegisterCluster registra las métricas del pipeline.
func RegisterCluster(reg prometheus.Registerer) error {
	return register(reg, ClusterTaskDuration, ClusterPendingTasks, ClusterStateVersion)
}
