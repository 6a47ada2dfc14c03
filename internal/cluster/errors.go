package cluster

import "errors"

var (
	// ErrProcessClusterEventTimeout indica que la tarea no llegó a ejecutarse dentro de su timeout.
	ErrProcessClusterEventTimeout = errors.New("failed to process cluster event within timeout")

	// ErrServiceClosed indica que el servicio fue cerrado.
	ErrServiceClosed = errors.New("cluster service closed")

	// ErrPublishFailed indica que el estado calculado no pudo commitearse.
	ErrPublishFailed = errors.New("failed to publish cluster state")

	// ErrNotLeader indica que la operación requiere ser líder del cluster.
	ErrNotLeader = errors.New("not cluster leader")
)
