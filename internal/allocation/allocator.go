// Package allocation asigna las copias de shards sin asignar a los nodos de datos.
package allocation

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"go.uber.org/zap"
)

// Cluster es la parte del pipeline que usa el allocator.
type Cluster interface {
	State() *metadata.ClusterState
	AddListener(l cluster.Listener) (remove func())
	SubmitStateUpdateTask(source string, task cluster.UpdateTask)
}

// Allocator escucha cambios de estado y, si quedan copias UNASSIGNED, encola
// una única tarea "shard-started" que las asigna y las marca STARTED.
type Allocator struct {
	cluster  Cluster
	enabled  bool
	isLeader func() bool
	pending  atomic.Bool
	remove   func()
	log      *zap.Logger
}

// Option configura el Allocator.
type Option func(*Allocator)

// WithLeaderCheck hace que sólo se encolen reroutes mientras isLeader sea true.
// En Raft los followers no pueden publicar: sus tareas fallarían con ErrNotLeader.
func WithLeaderCheck(isLeader func() bool) Option {
	return func(a *Allocator) { a.isLeader = isLeader }
}

// New crea el allocator. Con enabled=false nunca asigna nada.
func New(c Cluster, enabled bool, opts ...Option) *Allocator {
	a := &Allocator{cluster: c, enabled: enabled, log: logger.Named("allocation")}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Start registra el listener y revisa el estado actual.
func (a *Allocator) Start() {
	if !a.enabled {
		a.log.Info("shard allocation disabled")
		return
	}
	a.remove = a.cluster.AddListener(func(ev cluster.ChangedEvent) { a.maybeReroute(ev.State) })
	a.maybeReroute(a.cluster.State())
}

// Check revisa el estado actual; bootstrap lo llama al ganar el liderazgo.
func (a *Allocator) Check() {
	if a.enabled {
		a.maybeReroute(a.cluster.State())
	}
}

// Stop quita el listener.
func (a *Allocator) Stop() {
	if a.remove != nil {
		a.remove()
	}
}

func (a *Allocator) maybeReroute(st *metadata.ClusterState) {
	if st == nil || !st.RoutingTable.HasUnassigned() || len(st.Nodes.DataNodes()) == 0 {
		return
	}
	if a.isLeader != nil && !a.isLeader() {
		return
	}
	if !a.pending.CompareAndSwap(false, true) {
		return // ya hay una tarea encolada
	}
	a.cluster.SubmitStateUpdateTask("shard-started", &rerouteTask{a: a})
}

type rerouteTask struct {
	a *Allocator
}

func (t *rerouteTask) Priority() cluster.Priority { return cluster.PriorityNormal }

func (t *rerouteTask) Timeout() time.Duration { return 0 }

func (t *rerouteTask) Execute(current *metadata.ClusterState) (*metadata.ClusterState, error) {
	t.a.pending.Store(false)
	routing, assigned := Reroute(current)
	if assigned == 0 {
		return current, nil
	}
	t.a.log.Debug("started shard copies", logger.Int("copies", assigned))
	return current.Builder().RoutingTable(routing).Build(), nil
}

func (t *rerouteTask) OnFailure(source string, err error) {
	t.a.pending.Store(false)
	t.a.log.Warn("shard allocation failed", logger.Source(source), logger.Err(err))
}

// Reroute asigna cada copia UNASSIGNED a un nodo de datos: la primaria al nodo
// con menos copias y cada réplica a un nodo que todavía no tenga ese shard.
// Devuelve la tabla nueva y la cantidad de copias asignadas.
func Reroute(st *metadata.ClusterState) (*metadata.RoutingTable, int) {
	nodes := st.Nodes.DataNodes()
	if len(nodes) == 0 || st.RoutingTable == nil {
		return st.RoutingTable, 0
	}
	load := map[string]int{}
	for _, t := range st.RoutingTable.Indices {
		for _, s := range t.Shards {
			for _, c := range s.Copies {
				if c.NodeID != "" {
					load[c.NodeID]++
				}
			}
		}
	}

	routing := st.RoutingTable
	assigned := 0
	for _, name := range sortedIndexNames(st.RoutingTable) {
		orig := st.RoutingTable.Indices[name]
		var updated *metadata.IndexRoutingTable
		for si, shard := range orig.Shards {
			used := map[string]bool{}
			for _, c := range shard.Copies {
				if c.NodeID != "" {
					used[c.NodeID] = true
				}
			}
			for ci, c := range shard.Copies {
				if c.State != metadata.ShardUnassigned {
					continue
				}
				node, ok := leastLoaded(nodes, used, load)
				if !ok {
					continue
				}
				if updated == nil {
					updated = cloneIndexRouting(orig)
				}
				cp := &updated.Shards[si].Copies[ci]
				cp.NodeID = node
				cp.State = metadata.ShardStarted
				used[node] = true
				load[node]++
				assigned++
			}
		}
		if updated != nil {
			routing = routing.With(updated)
		}
	}
	return routing, assigned
}

func leastLoaded(nodes []metadata.DiscoveryNode, used map[string]bool, load map[string]int) (string, bool) {
	best, found := "", false
	for _, n := range nodes {
		if used[n.ID] {
			continue
		}
		if !found || load[n.ID] < load[best] {
			best, found = n.ID, true
		}
	}
	return best, found
}

func sortedIndexNames(rt *metadata.RoutingTable) []string {
	names := make([]string, 0, len(rt.Indices))
	for name := range rt.Indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneIndexRouting(t *metadata.IndexRoutingTable) *metadata.IndexRoutingTable {
	out := &metadata.IndexRoutingTable{Index: t.Index, Shards: make([]metadata.ShardTable, len(t.Shards))}
	for i, s := range t.Shards {
		copies := make([]metadata.ShardRouting, len(s.Copies))
		copy(copies, s.Copies)
		out.Shards[i] = metadata.ShardTable{ShardID: s.ShardID, Copies: copies}
	}
	return out
}
