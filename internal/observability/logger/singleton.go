package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var instance atomic.Pointer[zap.Logger]

// Init arma el logger del proceso y lo publica como global. Una segunda
// llamada lo reemplaza; los loggers ya derivados con Named conservan el anterior.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	instance.Store(l)
	return nil
}

// L retorna el logger global; sin Init, uno de consola en info.
func L() *zap.Logger {
	if l := instance.Load(); l != nil {
		return l
	}
	l, err := build(Config{})
	if err != nil {
		l = zap.NewNop()
	}
	if instance.CompareAndSwap(nil, l) {
		return l
	}
	return instance.Load()
}

// Named retorna un logger con el nombre del componente (cluster, bootstrap, ...).
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushea el logger global.
func Sync() error {
	if l := instance.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
