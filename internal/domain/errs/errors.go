// Package errs define la taxonomía de errores de la creación de data streams.
//
// Cada categoría es un sentinel comparable con errors.Is. Los errores concretos
// son *Error, que llevan la categoría, un motivo legible (con el nombre ofensivo
// embebido) y opcionalmente la causa.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedClusterVersion indica que algún nodo no soporta data streams.
	ErrUnsupportedClusterVersion = errors.New("unsupported cluster version")

	// ErrAlreadyExists indica que el recurso ya existe.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidName indica un nombre de data stream o índice inválido.
	ErrInvalidName = errors.New("invalid name")

	// ErrNoMatchingTemplate indica que ningún template matchea el nombre.
	ErrNoMatchingTemplate = errors.New("no matching index template")

	// ErrTemplateNotDataStreamCapable indica que el template no tiene data_stream.
	ErrTemplateNotDataStreamCapable = errors.New("index template not data stream capable")

	// ErrValidation indica un mapping de timestamp inválido.
	ErrValidation = errors.New("validation failed")

	// ErrProvisioning indica que falló la creación del backing index.
	ErrProvisioning = errors.New("provisioning failure")

	// ErrInternalConsistency indica un contrato roto por un colaborador (bug, no input del usuario).
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// Error es un error categorizado.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

// Unwrap expone tanto la categoría como la causa para errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// New crea un error de la categoría kind con un motivo formateado.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap categoriza una causa existente.
func Wrap(kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: cause}
}

// Internal es el atajo para aserciones de consistencia interna.
func Internal(format string, args ...any) *Error {
	return New(ErrInternalConsistency, format, args...)
}

// Categorized reporta si err ya pertenece a alguna categoría conocida.
func Categorized(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsAlreadyExists verifica si el error es ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInternal verifica si el error es una violación de consistencia interna.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternalConsistency)
}

// IsUserError reporta si err es un fallo de validación visible al usuario
// (todo lo categorizado salvo consistencia interna).
func IsUserError(err error) bool {
	return Categorized(err) && !IsInternal(err)
}
