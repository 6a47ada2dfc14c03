package bootstrap

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/dropDatabas3/datastreams/internal/config"
	"github.com/dropDatabas3/datastreams/internal/datastream"
	"github.com/dropDatabas3/datastreams/internal/indices"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/templates"
)

// ApplyOffline registra los templates de cfg y crea los data streams names
// directamente sobre st, sin pipeline ni acks. El resultado conserva la
// versión de st: publicar (y versionar) es cosa de quien lo cargue.
func ApplyOffline(cfg *config.Config, st *metadata.ClusterState, names []string) (*metadata.ClusterState, error) {
	tnames := make([]string, 0, len(cfg.Templates))
	for name := range cfg.Templates {
		tnames = append(tnames, name)
	}
	sort.Strings(tnames)

	var err error
	for _, name := range tnames {
		t := cfg.Templates[name]
		if existing, ok := st.Metadata.Template(name); ok && reflect.DeepEqual(existing, t) {
			continue
		}
		if st, err = templates.AddComposableTemplate(st, name, t); err != nil {
			return nil, fmt.Errorf("template [%s]: %w", name, err)
		}
	}

	matcher := templates.NewMatcher(cfg.TemplateCache.TTL)
	svc := datastream.NewService(nil, datastream.Deps{
		Provisioner: indices.NewCreateIndexService(matcher, indices.Defaults{
			NumberOfShards:   cfg.Indices.NumberOfShards,
			NumberOfReplicas: cfg.Indices.NumberOfReplicas,
		}),
		Matcher: matcher,
	}, nil)
	for _, name := range names {
		if st, err = svc.ApplyToState(datastream.NewCreateDataStreamRequest(name), st); err != nil {
			return nil, err
		}
	}
	return st, nil
}
