// Package datastream crea data streams: valida el pedido, provisiona el primer
// backing index y registra el data stream en el cluster state.
package datastream

import "time"

// Timeouts por defecto de un CreateDataStreamRequest.
const (
	DefaultMasterNodeTimeout = 30 * time.Second
	DefaultAckTimeout        = 30 * time.Second
)

// CreateDataStreamRequest es el pedido de creación.
type CreateDataStreamRequest struct {
	Name string
	// MasterNodeTimeout acota la espera en la cola del cluster hasta ejecutarse.
	MasterNodeTimeout time.Duration
	// AckTimeout acota el ack de los nodos y la espera de shards activos.
	AckTimeout time.Duration
}

// NewCreateDataStreamRequest crea un pedido con los timeouts por defecto.
func NewCreateDataStreamRequest(name string) CreateDataStreamRequest {
	return CreateDataStreamRequest{Name: name, MasterNodeTimeout: DefaultMasterNodeTimeout, AckTimeout: DefaultAckTimeout}
}

func (r CreateDataStreamRequest) withDefaults() CreateDataStreamRequest {
	if r.MasterNodeTimeout <= 0 {
		r.MasterNodeTimeout = DefaultMasterNodeTimeout
	}
	if r.AckTimeout <= 0 {
		r.AckTimeout = DefaultAckTimeout
	}
	return r
}

// AcknowledgedResponse es el resultado de una creación commiteada.
type AcknowledgedResponse struct {
	Acknowledged bool `json:"acknowledged"`
}
