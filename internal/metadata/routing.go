package metadata

// ShardState es el estado de una copia de shard.
type ShardState string

const (
	ShardUnassigned   ShardState = "UNASSIGNED"
	ShardInitializing ShardState = "INITIALIZING"
	ShardStarted      ShardState = "STARTED"
)

// ShardRouting es una copia (primaria o réplica) de un shard.
type ShardRouting struct {
	Index   string     `json:"index"`
	ShardID int        `json:"shard"`
	Primary bool       `json:"primary"`
	NodeID  string     `json:"node,omitempty"`
	State   ShardState `json:"state"`
}

// Active reporta si la copia está sirviendo.
func (s ShardRouting) Active() bool { return s.State == ShardStarted }

// ShardTable agrupa las copias de un shard.
type ShardTable struct {
	ShardID int            `json:"shard"`
	Copies  []ShardRouting `json:"copies"`
}

// ActiveCopies cuenta las copias activas.
func (t ShardTable) ActiveCopies() int {
	n := 0
	for _, c := range t.Copies {
		if c.Active() {
			n++
		}
	}
	return n
}

// PrimaryActive reporta si la primaria está activa.
func (t ShardTable) PrimaryActive() bool {
	for _, c := range t.Copies {
		if c.Primary && c.Active() {
			return true
		}
	}
	return false
}

// IndexRoutingTable es la tabla de ruteo de un índice.
type IndexRoutingTable struct {
	Index  string       `json:"index"`
	Shards []ShardTable `json:"shards"`
}

// NewUnassignedIndexRouting crea la tabla inicial de un índice recién creado.
func NewUnassignedIndexRouting(index string, shards, replicas int) *IndexRoutingTable {
	t := &IndexRoutingTable{Index: index, Shards: make([]ShardTable, shards)}
	for i := 0; i < shards; i++ {
		copies := make([]ShardRouting, 0, replicas+1)
		copies = append(copies, ShardRouting{Index: index, ShardID: i, Primary: true, State: ShardUnassigned})
		for r := 0; r < replicas; r++ {
			copies = append(copies, ShardRouting{Index: index, ShardID: i, State: ShardUnassigned})
		}
		t.Shards[i] = ShardTable{ShardID: i, Copies: copies}
	}
	return t
}

// RoutingTable es la tabla de ruteo del cluster.
type RoutingTable struct {
	Indices map[string]*IndexRoutingTable `json:"indices"`
}

// Index devuelve la tabla de un índice.
func (r *RoutingTable) Index(name string) (*IndexRoutingTable, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.Indices[name]
	return t, ok
}

// HasUnassigned reporta si queda alguna copia sin asignar.
func (r *RoutingTable) HasUnassigned() bool {
	if r == nil {
		return false
	}
	for _, t := range r.Indices {
		for _, s := range t.Shards {
			for _, c := range s.Copies {
				if c.State == ShardUnassigned {
					return true
				}
			}
		}
	}
	return false
}

// With devuelve una copia con la tabla del índice reemplazada.
func (r *RoutingTable) With(t *IndexRoutingTable) *RoutingTable {
	out := &RoutingTable{Indices: make(map[string]*IndexRoutingTable, r.size()+1)}
	if r != nil {
		for k, v := range r.Indices {
			out.Indices[k] = v
		}
	}
	out.Indices[t.Index] = t
	return out
}

func (r *RoutingTable) size() int {
	if r == nil {
		return 0
	}
	return len(r.Indices)
}
