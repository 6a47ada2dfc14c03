package metadata

import "fmt"

const backingIndexPrefix = ".ds-"

// DefaultBackingIndexName devuelve el nombre determinístico del backing index
// de la generación dada, p.ej. ".ds-logs-000001".
func DefaultBackingIndexName(dataStream string, generation int64) string {
	return fmt.Sprintf("%s%s-%06d", backingIndexPrefix, dataStream, generation)
}

// TimestampField describe el campo de timestamp de un data stream junto con
// el fragmento de mapping resuelto.
type TimestampField struct {
	Name    string         `json:"name"`
	Mapping map[string]any `json:"mapping"`
}

// DataStream es el recurso lógico append-only. Indices está ordenado por generación.
type DataStream struct {
	Name           string         `json:"name"`
	TimestampField TimestampField `json:"timestamp_field"`
	Indices        []Index        `json:"indices"`
	Generation     int64          `json:"generation"`
}

// NewDataStream construye un data stream con generación = len(indices).
func NewDataStream(name string, ts TimestampField, indices []Index) *DataStream {
	cp := make([]Index, len(indices))
	copy(cp, indices)
	return &DataStream{Name: name, TimestampField: ts, Indices: cp, Generation: int64(len(cp))}
}

// WriteIndex es el backing index de la última generación.
func (d *DataStream) WriteIndex() (Index, bool) {
	if len(d.Indices) == 0 {
		return Index{}, false
	}
	return d.Indices[len(d.Indices)-1], true
}
