// Package mapping trabaja sobre documentos de mapping estructurales
// ({"properties": {"campo": {"type": "date"}, ...}}).
package mapping

import (
	"strings"

	"github.com/dropDatabas3/datastreams/internal/domain/errs"
)

const propertiesSegment = "properties"

// FieldPathToMappingPath traduce un path de campo con puntos al path dentro del
// documento de mapping: "event.created" -> "properties.event.properties.created".
//
// Los nombres llegan ya validados por el servidor, así que un segmento vacío es
// una violación de contrato del llamador y no un error de usuario.
func FieldPathToMappingPath(fieldPath string) (string, error) {
	if fieldPath == "" {
		return "", errs.Internal("illegal field path []")
	}
	segments := strings.Split(fieldPath, ".")
	for _, s := range segments {
		if s == "" {
			return "", errs.Internal("illegal field path [%s]", fieldPath)
		}
	}
	return propertiesSegment + "." + strings.Join(segments, "."+propertiesSegment+"."), nil
}

// Eval recorre source siguiendo un path con puntos y devuelve el objeto final.
// Devuelve false si algún segmento falta o no es un objeto.
func Eval(path string, source map[string]any) (map[string]any, bool) {
	cur := source
	for _, seg := range strings.Split(path, ".") {
		next, ok := cur[seg]
		if !ok {
			return nil, false
		}
		obj, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = obj
	}
	return cur, true
}
