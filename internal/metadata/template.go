package metadata

// Template agrupa settings y mappings que un ComposableTemplate aporta a un índice nuevo.
type Template struct {
	Settings Settings       `json:"settings,omitempty" yaml:"settings,omitempty"`
	Mappings map[string]any `json:"mappings,omitempty" yaml:"mappings,omitempty"`
}

// DataStreamTemplate habilita la creación de data streams con el template.
type DataStreamTemplate struct {
	TimestampField string `json:"timestamp_field" yaml:"timestamp_field"`
}

// ComposableTemplate es un template de índices matcheado por patrones de nombre.
type ComposableTemplate struct {
	IndexPatterns []string            `json:"index_patterns" yaml:"index_patterns"`
	Template      *Template           `json:"template,omitempty" yaml:"template,omitempty"`
	Priority      int64               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Version       int64               `json:"version,omitempty" yaml:"version,omitempty"`
	DataStream    *DataStreamTemplate `json:"data_stream,omitempty" yaml:"data_stream,omitempty"`
}

// TimestampField devuelve el campo de timestamp configurado ("" si no es data-stream capable).
func (t *ComposableTemplate) TimestampField() string {
	if t == nil || t.DataStream == nil {
		return ""
	}
	return t.DataStream.TimestampField
}
