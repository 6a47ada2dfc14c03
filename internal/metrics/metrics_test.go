package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterAll_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterAll(reg); err != nil {
		t.Fatalf("second register must tolerate AlreadyRegistered: %v", err)
	}
	DataStreamCreations.WithLabelValues("acknowledged").Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "data_stream_create_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("data_stream_create_total not exported")
	}
}
