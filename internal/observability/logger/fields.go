package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - CLUSTER
// =================================================================================

// Source crea un campo para el source de una tarea de cluster state.
func Source(v string) zap.Field {
	return zap.String("source", v)
}

// StateVersion crea un campo para la versión del cluster state.
func StateVersion(v int64) zap.Field {
	return zap.Int64("state_version", v)
}

// StateUUID crea un campo para el uuid del cluster state.
func StateUUID(v string) zap.Field {
	return zap.String("state_uuid", v)
}

// NodeID crea un campo para el ID de nodo.
func NodeID(v string) zap.Field {
	return zap.String("node_id", v)
}

// Priority crea un campo para la prioridad de una tarea.
func Priority(v string) zap.Field {
	return zap.String("priority", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DATA STREAMS
// =================================================================================

// DataStream crea un campo para el nombre del data stream.
func DataStream(v string) zap.Field {
	return zap.String("data_stream", v)
}

// Index crea un campo para el nombre de un índice.
func Index(v string) zap.Field {
	return zap.String("index", v)
}

// Template crea un campo para el nombre de un template.
func Template(v string) zap.Field {
	return zap.String("template", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}
