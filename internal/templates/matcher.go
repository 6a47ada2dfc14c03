// Package templates resuelve y administra los composable index templates.
package templates

import (
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/datastreams/internal/metadata"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// globalPattern es el patrón que matchea todo; los índices hidden lo ignoran.
const globalPattern = "*"

// Matcher busca el template V2 que aplica a un nombre de índice.
//
// Los patrones compilados se cachean en memoria (go-cache) y su compilación se
// deduplica con singleflight. El resultado del match no se cachea: depende del
// estado y debe ser una función pura de él.
type Matcher struct {
	compiled *gocache.Cache
	sf       singleflight.Group
}

// NewMatcher crea un Matcher. ttl=0 usa 10 minutos.
func NewMatcher(ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Matcher{compiled: gocache.New(ttl, time.Minute)}
}

type candidate struct {
	name     string
	priority int64
	longest  int
}

// FindV2Template devuelve el nombre del template que aplica a indexName.
// Gana la prioridad más alta, luego el patrón más largo que matchea y por
// último el nombre (orden lexicográfico).
func (m *Matcher) FindV2Template(md *metadata.Metadata, indexName string, hidden bool) (string, bool) {
	if md == nil {
		return "", false
	}
	var found []candidate
	for name, t := range md.Templates {
		longest := -1
		for _, p := range t.IndexPatterns {
			if hidden && p == globalPattern {
				continue
			}
			if m.match(p, indexName) && len(p) > longest {
				longest = len(p)
			}
		}
		if longest >= 0 {
			found = append(found, candidate{name: name, priority: t.Priority, longest: longest})
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.longest != b.longest {
			return a.longest > b.longest
		}
		return a.name < b.name
	})
	return found[0].name, true
}

func (m *Matcher) match(pattern, name string) bool {
	return m.compile(pattern).matches(name)
}

func (m *Matcher) compile(pattern string) glob {
	if v, ok := m.compiled.Get(pattern); ok {
		return v.(glob)
	}
	v, _, _ := m.sf.Do(pattern, func() (interface{}, error) {
		g := compileGlob(pattern)
		m.compiled.SetDefault(pattern, g)
		return g, nil
	})
	return v.(glob)
}

// ─── glob ───

// glob es un patrón con '*' como único comodín.
type glob struct {
	parts    []string
	wildcard bool
}

func compileGlob(pattern string) glob {
	return glob{parts: strings.Split(pattern, "*"), wildcard: strings.Contains(pattern, "*")}
}

func (g glob) matches(s string) bool {
	if !g.wildcard {
		return g.parts[0] == s
	}
	first, last := g.parts[0], g.parts[len(g.parts)-1]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for _, mid := range g.parts[1 : len(g.parts)-1] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, last)
}

// literalPrefix es el tramo previo al primer '*'.
func (g glob) literalPrefix() string { return g.parts[0] }
