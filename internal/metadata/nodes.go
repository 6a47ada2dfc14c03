package metadata

import (
	"sort"

	"github.com/dropDatabas3/datastreams/internal/version"
)

// Roles de nodo.
const (
	RoleMaster = "master"
	RoleData   = "data"
)

// DiscoveryNode describe un nodo del cluster.
type DiscoveryNode struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Address string          `json:"address,omitempty"`
	Version version.Version `json:"version"`
	// Roles vacío significa todos los roles.
	Roles []string `json:"roles,omitempty"`
}

// HasRole reporta si el nodo tiene el rol dado.
func (n DiscoveryNode) HasRole(role string) bool {
	if len(n.Roles) == 0 {
		return true
	}
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DiscoveryNodes es el conjunto de nodos conocidos.
type DiscoveryNodes struct {
	Nodes        map[string]DiscoveryNode `json:"nodes"`
	MasterNodeID string                   `json:"master_node_id,omitempty"`
}

// MinNodeVersion es la versión más baja del cluster. Sin nodos devuelve version.Current.
func (d DiscoveryNodes) MinNodeVersion() version.Version {
	if len(d.Nodes) == 0 {
		return version.Current
	}
	first := true
	var min version.Version
	for _, n := range d.Nodes {
		if first || n.Version.Before(min) {
			min = n.Version
			first = false
		}
	}
	return min
}

// DataNodes devuelve los nodos de datos ordenados por ID.
func (d DiscoveryNodes) DataNodes() []DiscoveryNode {
	out := make([]DiscoveryNode, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.HasRole(RoleData) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WithMaster devuelve una copia con el master elegido.
func (d DiscoveryNodes) WithMaster(id string) DiscoveryNodes {
	return DiscoveryNodes{Nodes: d.clone(), MasterNodeID: id}
}

// With devuelve una copia con el nodo agregado o reemplazado.
func (d DiscoveryNodes) With(n DiscoveryNode) DiscoveryNodes {
	nodes := d.clone()
	nodes[n.ID] = n
	return DiscoveryNodes{Nodes: nodes, MasterNodeID: d.MasterNodeID}
}

func (d DiscoveryNodes) clone() map[string]DiscoveryNode {
	nodes := make(map[string]DiscoveryNode, len(d.Nodes)+1)
	for k, v := range d.Nodes {
		nodes[k] = v
	}
	return nodes
}
