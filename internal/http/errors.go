package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica el body (máx 1MB). Campos desconocidos se toleran.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido")
		return false
	}
	return true
}

// errorStatus traduce las categorías de error a status y código.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, cluster.ErrNotLeader):
		return http.StatusConflict, "not_leader"
	case errors.Is(err, cluster.ErrProcessClusterEventTimeout):
		return http.StatusServiceUnavailable, "process_cluster_event_timeout"
	case errors.Is(err, cluster.ErrServiceClosed):
		return http.StatusServiceUnavailable, "service_closed"
	case errs.IsAlreadyExists(err):
		return http.StatusBadRequest, "resource_already_exists"
	case errors.Is(err, errs.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errs.IsInternal(err):
		return http.StatusInternalServerError, "internal_consistency"
	case errs.IsUserError(err):
		return http.StatusBadRequest, "illegal_argument"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteErr escribe err con el status de su categoría.
func WriteErr(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	WriteError(w, status, code, err.Error())
}
