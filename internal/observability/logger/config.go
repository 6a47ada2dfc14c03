package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config del logger del nodo. bootstrap la arma desde config.Log / config.App / config.Cluster.
type Config struct {
	// Env: "prod" loguea JSON; cualquier otro valor, consola.
	Env string
	// Format fuerza el encoder ("json" | "console"); vacío sigue a Env.
	Format string
	// Level: debug | info | warn | error.
	Level string

	// Campos fijos en cada entrada.
	ClusterName string
	NodeID      string
}

func (c Config) encoding() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "":
		if strings.EqualFold(c.Env, "prod") {
			return "json", nil
		}
		return "console", nil
	case "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("invalid log format %q (json|console)", c.Format)
	}
}

func (c Config) initialFields() map[string]any {
	f := map[string]any{}
	if c.ClusterName != "" {
		f["cluster"] = c.ClusterName
	}
	if c.NodeID != "" {
		f["node_id"] = c.NodeID
	}
	return f
}

// build arma el logger; los campos del nodo van como InitialFields del core.
func build(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	enc, err := cfg.encoding()
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if enc == "json" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zcfg.InitialFields = cfg.initialFields()

	opts := []zap.Option{zap.AddCaller()}
	if enc == "json" {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zcfg.Build(opts...)
}

// ParseLevel acepta los niveles de config.Log.Level. Vacío es info.
func ParseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", lvl)
	}
}
