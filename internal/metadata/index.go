package metadata

// Index identifica un índice concreto (nombre + uuid).
type Index struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

func (i Index) String() string { return "[" + i.Name + "/" + i.UUID + "]" }

// IndexMetadata es la metadata de un backing index.
type IndexMetadata struct {
	Index    Index    `json:"index"`
	Settings Settings `json:"settings"`
	// Mapping es el documento de mapping estructural, con raíz en "properties".
	Mapping map[string]any `json:"mapping,omitempty"`
	// DataStream es el data stream dueño del índice (vacío si no pertenece a uno).
	DataStream string `json:"data_stream,omitempty"`
}

// Name es un atajo a Index.Name.
func (m *IndexMetadata) Name() string { return m.Index.Name }

// Hidden reporta index.hidden.
func (m *IndexMetadata) Hidden() bool { return m.Settings.GetBool(SettingHidden, false) }

// NumberOfShards devuelve la cantidad de shards primarios (default 1).
func (m *IndexMetadata) NumberOfShards() int { return m.Settings.GetInt(SettingNumberOfShards, 1) }

// NumberOfReplicas devuelve la cantidad de réplicas por shard (default 1).
func (m *IndexMetadata) NumberOfReplicas() int {
	return m.Settings.GetInt(SettingNumberOfReplicas, 1)
}
