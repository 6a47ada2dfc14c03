package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/hashicorp/raft"
)

// StateApplier recibe los estados commiteados por Raft.
type StateApplier interface {
	ApplyCommitted(source string, st *metadata.ClusterState) bool
}

// FSM implementa raft.FSM. Es determinístico: sólo deserializa el estado ya
// calculado por el leader y lo delega al StateApplier.
type FSM struct {
	applier StateApplier

	mu     sync.Mutex
	latest []byte // último estado aplicado, tal cual se replicó
}

// NewFSM crea el FSM.
func NewFSM(applier StateApplier) *FSM {
	return &FSM{applier: applier}
}

// Apply decodifica la mutación y aplica el estado.
// NO hace validaciones, NO genera IDs, NO usa time.Now().
func (f *FSM) Apply(l *raft.Log) interface{} {
	if l == nil || len(l.Data) == 0 {
		return nil
	}
	var m Mutation
	if err := json.Unmarshal(l.Data, &m); err != nil {
		return err
	}
	switch m.Type {
	case MutationPublishState:
		st, err := decodeState(m.Payload)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.latest = m.Payload
		f.mu.Unlock()
		f.applier.ApplyCommitted(m.Source, st)
		return nil
	default:
		// Tipo desconocido: ignorar
		return nil
	}
}

// Snapshot captura el último estado aplicado.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &stateSnapshot{data: f.latest}, nil
}

// Restore reemplaza el estado con el de un snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.latest = data
	f.mu.Unlock()
	f.applier.ApplyCommitted("restore-snapshot", st)
	return nil
}

func decodeState(b []byte) (*metadata.ClusterState, error) {
	var st metadata.ClusterState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode cluster state: %w", err)
	}
	if st.Metadata == nil {
		return nil, fmt.Errorf("decode cluster state: missing metadata")
	}
	return &st, nil
}

type stateSnapshot struct {
	data []byte
}

func (s *stateSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *stateSnapshot) Release() {}
