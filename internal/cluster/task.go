package cluster

import (
	"time"

	"github.com/dropDatabas3/datastreams/internal/metadata"
)

// UpdateTask es una unidad de trabajo para el single-writer.
//
// Execute recibe el estado actual y devuelve el nuevo. Debe ser síncrona y sin
// efectos más allá de leer el estado. Devolver el mismo puntero significa "sin
// cambios": la tarea se considera procesada sin publicar.
type UpdateTask interface {
	Priority() Priority
	// Timeout acota el tiempo desde el envío hasta el commit: la espera en cola
	// y la publicación (0 = sólo publishTimeout).
	Timeout() time.Duration
	Execute(current *metadata.ClusterState) (*metadata.ClusterState, error)
	OnFailure(source string, err error)
}

// ProcessedListener es opcional: se invoca tras aplicar el estado commiteado.
type ProcessedListener interface {
	ClusterStateProcessed(source string, oldState, newState *metadata.ClusterState)
}

// AckedTask es una tarea que además espera el acknowledgement de los nodos.
type AckedTask interface {
	UpdateTask
	AckTimeout() time.Duration
	// OnAckResult se invoca una sola vez tras el commit: true si los nodos
	// confirmaron dentro de AckTimeout.
	OnAckResult(acknowledged bool)
}

// Response es el resultado de una AckedRequest commiteada.
type Response struct {
	Acknowledged bool
	State        *metadata.ClusterState
}

// AckedRequest es la implementación genérica de AckedTask: una función de
// ejecución y un único listener de resultado.
type AckedRequest struct {
	Prio          Priority
	MasterTimeout time.Duration
	AckWait       time.Duration
	Run           func(current *metadata.ClusterState) (*metadata.ClusterState, error)
	// Processed es opcional.
	Processed func(source string, oldState, newState *metadata.ClusterState)
	// Listener recibe (resp, nil) tras el ack o (Response{}, err) si la tarea falló.
	Listener func(resp Response, err error)

	committed *metadata.ClusterState
}

func (r *AckedRequest) Priority() Priority        { return r.Prio }
func (r *AckedRequest) Timeout() time.Duration    { return r.MasterTimeout }
func (r *AckedRequest) AckTimeout() time.Duration { return r.AckWait }

func (r *AckedRequest) Execute(current *metadata.ClusterState) (*metadata.ClusterState, error) {
	return r.Run(current)
}

func (r *AckedRequest) OnFailure(_ string, err error) { r.Listener(Response{}, err) }

func (r *AckedRequest) ClusterStateProcessed(source string, oldState, newState *metadata.ClusterState) {
	r.committed = newState
	if r.Processed != nil {
		r.Processed(source, oldState, newState)
	}
}

func (r *AckedRequest) OnAckResult(acknowledged bool) {
	r.Listener(Response{Acknowledged: acknowledged, State: r.committed}, nil)
}
