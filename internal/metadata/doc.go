// Package metadata modela el estado del cluster: nodos, metadata (índices,
// templates, data streams) y tabla de ruteo de shards.
//
// Un *ClusterState publicado es inmutable. Toda transición construye un estado
// nuevo mediante los builders (copy-on-write de los mapas); las entradas
// individuales (*IndexMetadata, *DataStream, ...) nunca se modifican una vez
// insertadas, así que los builders las comparten entre versiones.
package metadata
