// Package cluster implementa el pipeline single-writer de actualizaciones del
// cluster state y su replicación por Raft.
package cluster

// MutationType define el catálogo de operaciones replicadas.
type MutationType string

const (
	// MutationPublishState publica un cluster state completo ya calculado por el leader.
	MutationPublishState MutationType = "publish_state"
)

// Mutation representa una operación a replicar por Raft.
// El payload es JSON crudo pre-serializado; el FSM no recalcula nada.
type Mutation struct {
	Type    MutationType `json:"type"`
	Source  string       `json:"source"` // source de la tarea que produjo el estado
	Version int64        `json:"version"`
	TsUnix  int64        `json:"tsUnix"`
	Payload []byte       `json:"payload"`
}
