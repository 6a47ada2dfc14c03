package metadata

import (
	"github.com/google/uuid"
)

// UnknownUUID es el uuid de estados que todavía no fueron publicados.
const UnknownUUID = "_na_"

// ClusterState es una vista inmutable y versionada de todo el estado del cluster.
type ClusterState struct {
	ClusterName  string         `json:"cluster_name"`
	Version      int64          `json:"version"`
	StateUUID    string         `json:"state_uuid"`
	Nodes        DiscoveryNodes `json:"nodes"`
	Metadata     *Metadata      `json:"metadata"`
	RoutingTable *RoutingTable  `json:"routing_table"`
}

// NewClusterState crea el estado inicial (versión 0) de un cluster.
func NewClusterState(clusterName string, nodes DiscoveryNodes) *ClusterState {
	return &ClusterState{
		ClusterName:  clusterName,
		StateUUID:    UnknownUUID,
		Nodes:        nodes,
		Metadata:     EmptyMetadata(uuid.NewString()),
		RoutingTable: &RoutingTable{Indices: map[string]*IndexRoutingTable{}},
	}
}

// Builder arranca un builder sobre s. Build no cambia versión ni uuid: eso lo
// hace quien publica (ver WithNextVersion), así las transiciones son puras.
func (s *ClusterState) Builder() *StateBuilder {
	return &StateBuilder{
		clusterName: s.ClusterName,
		version:     s.Version,
		stateUUID:   s.StateUUID,
		nodes:       s.Nodes,
		metadata:    s.Metadata,
		routing:     s.RoutingTable,
	}
}

// WithNextVersion devuelve una copia superficial con versión +1 y uuid nuevo.
// La versión de metadata sólo avanza si la metadata cambió respecto de prev.
func (s *ClusterState) WithNextVersion(prev *ClusterState) *ClusterState {
	out := *s
	out.Version = prev.Version + 1
	out.StateUUID = uuid.NewString()
	if s.Metadata != prev.Metadata {
		md := *s.Metadata
		md.Version = prev.Metadata.Version + 1
		out.Metadata = &md
	}
	return &out
}

// StateBuilder arma un ClusterState nuevo reutilizando las partes sin cambios.
type StateBuilder struct {
	clusterName string
	version     int64
	stateUUID   string
	nodes       DiscoveryNodes
	metadata    *Metadata
	routing     *RoutingTable
}

// Metadata reemplaza la metadata.
func (b *StateBuilder) Metadata(md *Metadata) *StateBuilder {
	b.metadata = md
	return b
}

// RoutingTable reemplaza la tabla de ruteo.
func (b *StateBuilder) RoutingTable(rt *RoutingTable) *StateBuilder {
	b.routing = rt
	return b
}

// Nodes reemplaza los nodos.
func (b *StateBuilder) Nodes(n DiscoveryNodes) *StateBuilder {
	b.nodes = n
	return b
}

// Build devuelve el estado nuevo.
func (b *StateBuilder) Build() *ClusterState {
	return &ClusterState{
		ClusterName:  b.clusterName,
		Version:      b.version,
		StateUUID:    b.stateUUID,
		Nodes:        b.nodes,
		Metadata:     b.metadata,
		RoutingTable: b.routing,
	}
}
