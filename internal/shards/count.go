// Package shards espera a que los shards de índices nuevos estén activos.
package shards

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dropDatabas3/datastreams/internal/metadata"
)

// ActiveShardCount es la cantidad de copias activas requeridas por shard.
type ActiveShardCount int

const (
	// Default requiere la primaria (1 copia activa).
	Default ActiveShardCount = -2
	// All requiere todas las copias (primaria + réplicas).
	All ActiveShardCount = -1
	// None no espera nada.
	None ActiveShardCount = 0
)

// From valida un conteo explícito.
func From(n int) (ActiveShardCount, error) {
	if n < 0 {
		return 0, fmt.Errorf("active shard count cannot be negative: %d", n)
	}
	return ActiveShardCount(n), nil
}

// Parse acepta "", "default", "all" o un entero no negativo.
func Parse(s string) (ActiveShardCount, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return Default, nil
	case "all":
		return All, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("cannot parse ActiveShardCount[%s]", s)
	}
	return From(n)
}

func (c ActiveShardCount) String() string {
	switch c {
	case Default:
		return "DEFAULT"
	case All:
		return "ALL"
	default:
		return strconv.Itoa(int(c))
	}
}

// Resolve traduce el conteo a copias concretas para un índice.
func (c ActiveShardCount) Resolve(im *metadata.IndexMetadata) int {
	switch c {
	case Default:
		return 1
	case All:
		return im.NumberOfReplicas() + 1
	default:
		return int(c)
	}
}

// EnoughShardsActive reporta si todos los shards de indices tienen al menos las
// copias activas requeridas en st. Un índice que ya no existe no bloquea la espera.
func (c ActiveShardCount) EnoughShardsActive(st *metadata.ClusterState, indices ...string) bool {
	if c == None {
		return true
	}
	for _, name := range indices {
		im, ok := st.Metadata.Index(name)
		if !ok {
			continue
		}
		rt, ok := st.RoutingTable.Index(name)
		if !ok {
			return false
		}
		need := c.Resolve(im)
		for _, shard := range rt.Shards {
			if !shard.PrimaryActive() || shard.ActiveCopies() < need {
				return false
			}
		}
	}
	return true
}
