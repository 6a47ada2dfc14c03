package mapping

import (
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
)

// Tipos permitidos para el campo de timestamp de un data stream.
const (
	TypeDate      = "date"
	TypeDateNanos = "date_nanos"
)

// AllowedTimestampFieldTypes en orden de preferencia.
var AllowedTimestampFieldTypes = []string{TypeDate, TypeDateNanos}

// ValidateTimestampField confirma que el campo existe y es de un tipo permitido.
// Sólo valida; el descriptor del campo se arma aparte desde el mapping resuelto.
func ValidateTimestampField(name string, lookup FieldTypeLookup) error {
	typ, ok := lookup.FieldType(name)
	if !ok {
		return errs.New(errs.ErrValidation, "expected timestamp field [%s], but found no timestamp field", name)
	}
	for _, allowed := range AllowedTimestampFieldTypes {
		if typ == allowed {
			return nil
		}
	}
	return errs.New(errs.ErrValidation,
		"expected timestamp field [%s] to be of types %v, but instead found type [%s]",
		name, AllowedTimestampFieldTypes, typ)
}
