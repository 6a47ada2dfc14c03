package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFrom_PrefersContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "r-1"))

	From(ctx).Info("adding data stream", DataStream("logs"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["data_stream"] != "logs" || fields["request_id"] != "r-1" {
		t.Fatalf("missing fields: %+v", fields)
	}
}

func TestFrom_FallsBackToGlobal(t *testing.T) {
	if From(context.Background()) != L() {
		t.Fatalf("expected global fallback")
	}
	if From(nil) != L() { //nolint:staticcheck
		t.Fatalf("expected global fallback for nil ctx")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestConfig_Encoding(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "console"},
		{Config{Env: "prod"}, "json"},
		{Config{Env: "prod", Format: "console"}, "console"},
		{Config{Env: "dev", Format: "JSON"}, "json"},
	}
	for _, c := range cases {
		got, err := c.cfg.encoding()
		if err != nil || got != c.want {
			t.Fatalf("encoding(%+v)=%q,%v want %q", c.cfg, got, err, c.want)
		}
	}
	if _, err := (Config{Format: "logfmt"}).encoding(); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestInit_RejectsBadConfigAndKeepsPrevious(t *testing.T) {
	if err := Init(Config{Level: "info", ClusterName: "c1", NodeID: "n1"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	prev := L()
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if L() != prev {
		t.Fatalf("global logger replaced by a failed Init")
	}
}

func TestConfig_InitialFields(t *testing.T) {
	f := Config{ClusterName: "c1", NodeID: "n1"}.initialFields()
	if f["cluster"] != "c1" || f["node_id"] != "n1" {
		t.Fatalf("unexpected fields: %+v", f)
	}
	if len(Config{}.initialFields()) != 0 {
		t.Fatalf("expected no fields for empty config")
	}
}
