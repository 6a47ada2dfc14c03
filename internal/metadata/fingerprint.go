package metadata

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint es un hash estructural del contenido del estado (metadata + ruteo + nodos).
// Ignora versión y uuid: dos transiciones equivalentes producen el mismo fingerprint.
func (s *ClusterState) Fingerprint() (uint64, error) {
	content := struct {
		Nodes   DiscoveryNodes `json:"nodes"`
		Indices any            `json:"indices"`
		Tmpl    any            `json:"templates"`
		Streams any            `json:"data_streams"`
		Routing *RoutingTable  `json:"routing"`
	}{Nodes: s.Nodes, Routing: s.RoutingTable}
	if s.Metadata != nil {
		content.Indices = s.Metadata.Indices
		content.Tmpl = s.Metadata.Templates
		content.Streams = s.Metadata.DataStreams
	}
	// encoding/json ordena las claves de los mapas, así que la salida es canónica.
	b, err := json.Marshal(content)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}
