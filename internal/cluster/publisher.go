package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/datastreams/internal/metadata"
)

// Publisher commitea estados calculados por el escritor.
type Publisher interface {
	// Publish commitea st. Al volver sin error el estado es durable.
	Publish(ctx context.Context, source string, st *metadata.ClusterState) error
	// WaitForAck espera a que los nodos confirmen st; false si vence ctx.
	WaitForAck(ctx context.Context, st *metadata.ClusterState) bool
}

// LocalPublisher es el publisher de un único nodo sin replicación (cluster.mode=off).
type LocalPublisher struct{}

func (LocalPublisher) Publish(context.Context, string, *metadata.ClusterState) error { return nil }

func (LocalPublisher) WaitForAck(context.Context, *metadata.ClusterState) bool { return true }

// RaftPublisher replica cada estado como una Mutation en el log de Raft.
// El commit es el Apply (quórum + FSM del leader); el ack es un Barrier.
type RaftPublisher struct {
	node *Node
}

// NewRaftPublisher crea un publisher sobre un Node ya arrancado.
func NewRaftPublisher(n *Node) *RaftPublisher {
	return &RaftPublisher{node: n}
}

func (p *RaftPublisher) Publish(ctx context.Context, source string, st *metadata.ClusterState) error {
	if !p.node.IsLeader() {
		return fmt.Errorf("%w (leader=%s)", ErrNotLeader, p.node.LeaderID())
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode cluster state: %w", err)
	}
	_, err = p.node.Apply(ctx, Mutation{
		Type:    MutationPublishState,
		Source:  source,
		Version: st.Version,
		TsUnix:  time.Now().Unix(),
		Payload: payload,
	})
	return err
}

func (p *RaftPublisher) WaitForAck(ctx context.Context, _ *metadata.ClusterState) bool {
	return p.node.Barrier(ctx) == nil
}
