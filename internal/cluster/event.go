package cluster

import "github.com/dropDatabas3/datastreams/internal/metadata"

// ChangedEvent se entrega a los listeners tras aplicar cada estado commiteado.
type ChangedEvent struct {
	Source   string
	Previous *metadata.ClusterState // nil para el primer estado
	State    *metadata.ClusterState
}

// Listener recibe los eventos en orden de versión, en el goroutine que aplica.
// No debe bloquear: para trabajo pesado, encolar y volver.
type Listener func(ChangedEvent)

// IndicesCreated devuelve los índices presentes en State y no en Previous.
func (e ChangedEvent) IndicesCreated() []string {
	var out []string
	for name := range e.State.Metadata.Indices {
		if e.Previous == nil || e.Previous.Metadata == nil {
			out = append(out, name)
			continue
		}
		if _, ok := e.Previous.Metadata.Indices[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// DataStreamsCreated devuelve los data streams presentes en State y no en Previous.
func (e ChangedEvent) DataStreamsCreated() []*metadata.DataStream {
	var out []*metadata.DataStream
	for name, ds := range e.State.Metadata.DataStreams {
		if e.Previous != nil && e.Previous.Metadata != nil {
			if _, ok := e.Previous.Metadata.DataStreams[name]; ok {
				continue
			}
		}
		out = append(out, ds)
	}
	return out
}

// RoutingChanged reporta si la tabla de ruteo cambió de puntero.
func (e ChangedEvent) RoutingChanged() bool {
	return e.Previous == nil || e.Previous.RoutingTable != e.State.RoutingTable
}
