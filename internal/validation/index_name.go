package validation

import (
	"fmt"
	"strings"
)

// MaxIndexNameBytes es el largo máximo (en bytes) de un nombre de índice o alias.
const MaxIndexNameBytes = 255

// InvalidFilenameChars no se permiten en nombres de índices, aliases ni data streams.
var InvalidFilenameChars = []string{`\`, `/`, `*`, `?`, `"`, `<`, `>`, `|`, ` `, `,`}

// NameError describe por qué un nombre es inválido.
// Reason está pensado para ir después del nombre: "data_stream [x] <reason>".
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string { return "[" + e.Name + "] " + e.Reason }

// ValidateIndexOrAliasName aplica las reglas genéricas de identificadores.
// No valida mayúsculas ni el prefijo "." (eso depende del tipo de recurso).
func ValidateIndexOrAliasName(name string) error {
	if name == "" {
		return &NameError{Name: name, Reason: "must not be empty"}
	}
	for _, c := range InvalidFilenameChars {
		if strings.Contains(name, c) {
			return &NameError{Name: name, Reason: "must not contain the following characters " + fmt.Sprint(InvalidFilenameChars)}
		}
	}
	if strings.Contains(name, "#") {
		return &NameError{Name: name, Reason: "must not contain '#'"}
	}
	if strings.Contains(name, ":") {
		return &NameError{Name: name, Reason: "must not contain ':'"}
	}
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "-") || strings.HasPrefix(name, "+") {
		return &NameError{Name: name, Reason: "must not start with '_', '-', or '+'"}
	}
	if len(name) > MaxIndexNameBytes {
		return &NameError{Name: name, Reason: fmt.Sprintf("name is too long, (%d > %d)", len(name), MaxIndexNameBytes)}
	}
	if name == "." || name == ".." {
		return &NameError{Name: name, Reason: "must not be '.' or '..'"}
	}
	return nil
}
