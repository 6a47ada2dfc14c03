package mapping

import "sort"

const (
	TypeObject = "object"
	TypeNested = "nested"
)

// FieldTypeLookup resuelve el tipo declarado de un campo por su path completo.
type FieldTypeLookup interface {
	FieldType(name string) (string, bool)
}

// FieldTypes es un FieldTypeLookup construido a partir de un documento de mapping.
type FieldTypes map[string]string

// FieldType implementa FieldTypeLookup.
func (f FieldTypes) FieldType(name string) (string, bool) {
	t, ok := f[name]
	return t, ok
}

// Names devuelve los campos registrados, ordenados.
func (f FieldTypes) Names() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewFieldTypes indexa los campos hoja de un mapping. Los objetos (con
// "properties" y sin tipo, o de tipo object/nested) se aplanan con puntos.
func NewFieldTypes(source map[string]any) FieldTypes {
	out := FieldTypes{}
	collect(out, "", source)
	return out
}

func collect(out FieldTypes, prefix string, node map[string]any) {
	props, ok := node[propertiesSegment].(map[string]any)
	if !ok {
		return
	}
	for name, raw := range props {
		def, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		typ, _ := def["type"].(string)
		if _, hasProps := def[propertiesSegment]; hasProps && (typ == "" || typ == TypeObject || typ == TypeNested) {
			if typ == TypeNested {
				out[full] = TypeNested
			}
			collect(out, full, def)
			continue
		}
		if typ == "" {
			typ = TypeObject
		}
		out[full] = typ
	}
}
