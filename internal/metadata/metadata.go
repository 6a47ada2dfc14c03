package metadata

import (
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
)

// Metadata es la parte persistente del estado del cluster.
type Metadata struct {
	ClusterUUID string                         `json:"cluster_uuid"`
	Version     int64                          `json:"version"`
	Indices     map[string]*IndexMetadata      `json:"indices"`
	Templates   map[string]*ComposableTemplate `json:"templates"`
	DataStreams map[string]*DataStream         `json:"data_streams"`
}

// EmptyMetadata devuelve metadata vacía con los mapas inicializados.
func EmptyMetadata(clusterUUID string) *Metadata {
	return &Metadata{
		ClusterUUID: clusterUUID,
		Indices:     map[string]*IndexMetadata{},
		Templates:   map[string]*ComposableTemplate{},
		DataStreams: map[string]*DataStream{},
	}
}

// Index busca un índice por nombre.
func (m *Metadata) Index(name string) (*IndexMetadata, bool) {
	im, ok := m.Indices[name]
	return im, ok
}

// DataStream busca un data stream por nombre.
func (m *Metadata) DataStream(name string) (*DataStream, bool) {
	ds, ok := m.DataStreams[name]
	return ds, ok
}

// Template busca un composable template por nombre.
func (m *Metadata) Template(name string) (*ComposableTemplate, bool) {
	t, ok := m.Templates[name]
	return t, ok
}

// Builder arranca un builder copy-on-write sobre m.
func (m *Metadata) Builder() *MetadataBuilder {
	b := &MetadataBuilder{
		clusterUUID: m.ClusterUUID,
		version:     m.Version,
		indices:     make(map[string]*IndexMetadata, len(m.Indices)+1),
		templates:   make(map[string]*ComposableTemplate, len(m.Templates)),
		dataStreams: make(map[string]*DataStream, len(m.DataStreams)+1),
	}
	for k, v := range m.Indices {
		b.indices[k] = v
	}
	for k, v := range m.Templates {
		b.templates[k] = v
	}
	for k, v := range m.DataStreams {
		b.dataStreams[k] = v
	}
	return b
}

// MetadataBuilder acumula cambios sobre copias de los mapas.
type MetadataBuilder struct {
	clusterUUID string
	version     int64
	indices     map[string]*IndexMetadata
	templates   map[string]*ComposableTemplate
	dataStreams map[string]*DataStream
}

// PutIndex agrega o reemplaza un índice.
func (b *MetadataBuilder) PutIndex(im *IndexMetadata) *MetadataBuilder {
	b.indices[im.Index.Name] = im
	return b
}

// PutTemplate agrega o reemplaza un composable template.
func (b *MetadataBuilder) PutTemplate(name string, t *ComposableTemplate) *MetadataBuilder {
	b.templates[name] = t
	return b
}

// PutDataStream agrega o reemplaza un data stream.
func (b *MetadataBuilder) PutDataStream(ds *DataStream) *MetadataBuilder {
	b.dataStreams[ds.Name] = ds
	return b
}

// Version fija la versión de metadata.
func (b *MetadataBuilder) Version(v int64) *MetadataBuilder {
	b.version = v
	return b
}

// Build valida que cada backing index referenciado exista y devuelve la metadata nueva.
func (b *MetadataBuilder) Build() (*Metadata, error) {
	for _, ds := range b.dataStreams {
		for _, idx := range ds.Indices {
			if _, ok := b.indices[idx.Name]; !ok {
				return nil, errs.Internal("data stream [%s] references missing backing index [%s]", ds.Name, idx.Name)
			}
		}
	}
	return &Metadata{
		ClusterUUID: b.clusterUUID,
		Version:     b.version,
		Indices:     b.indices,
		Templates:   b.templates,
		DataStreams: b.dataStreams,
	}, nil
}
