package metadata

import (
	"sort"
	"strconv"
)

// Claves de settings de índice conocidas.
const (
	SettingHidden           = "index.hidden"
	SettingNumberOfShards   = "index.number_of_shards"
	SettingNumberOfReplicas = "index.number_of_replicas"
	SettingUUID             = "index.uuid"
	SettingVersionCreated   = "index.version.created"
)

// Settings es un mapa plano de settings. Se trata como inmutable.
type Settings map[string]string

// Get devuelve el valor crudo.
func (s Settings) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// GetBool interpreta "true"/"false"; cualquier otro valor devuelve def.
func (s Settings) GetBool(key string, def bool) bool {
	v, ok := s[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt interpreta un entero; valores inválidos devuelven def.
func (s Settings) GetInt(key string, def int) int {
	v, ok := s[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Merge devuelve una copia con over aplicado encima de s.
func (s Settings) Merge(over Settings) Settings {
	out := make(Settings, len(s)+len(over))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Keys devuelve las claves ordenadas.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
