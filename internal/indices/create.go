// Package indices provisiona índices nuevos dentro del cluster state.
package indices

import (
	"strconv"
	"strings"

	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/mapping"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"github.com/dropDatabas3/datastreams/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// indexUUIDNamespace deriva uuids de índice determinísticos (cluster uuid + nombre).
var indexUUIDNamespace = uuid.MustParse("6f1c2a7e-3b0d-4c55-9a0e-2d9f6c1b7a42")

// CreateIndexRequest describe un índice a crear.
type CreateIndexRequest struct {
	Cause string
	Index string
	// DataStreamName marca al índice como backing index del data stream.
	DataStreamName string
	Settings       metadata.Settings
	Mappings       map[string]any
}

// TemplateMatcher resuelve el template V2 de un índice.
type TemplateMatcher interface {
	FindV2Template(md *metadata.Metadata, indexName string, hidden bool) (string, bool)
}

// Defaults son los settings aplicados cuando ni el request ni el template los fijan.
type Defaults struct {
	NumberOfShards   int
	NumberOfReplicas int
}

// CreateIndexService es el servicio de provisioning de índices.
type CreateIndexService struct {
	matcher  TemplateMatcher
	defaults Defaults
	log      *zap.Logger
}

// DefaultDefaults: 1 shard primario y 1 réplica.
var DefaultDefaults = Defaults{NumberOfShards: 1, NumberOfReplicas: 1}

// NewCreateIndexService crea el servicio. NumberOfShards <= 0 o
// NumberOfReplicas < 0 usan los valores de DefaultDefaults.
func NewCreateIndexService(matcher TemplateMatcher, d Defaults) *CreateIndexService {
	if d.NumberOfShards <= 0 {
		d.NumberOfShards = DefaultDefaults.NumberOfShards
	}
	if d.NumberOfReplicas < 0 {
		d.NumberOfReplicas = DefaultDefaults.NumberOfReplicas
	}
	return &CreateIndexService{matcher: matcher, defaults: d, log: logger.Named("indices")}
}

// ApplyCreateIndexRequest agrega el índice al estado y devuelve el estado nuevo.
// Es una transición pura: no modifica current.
func (s *CreateIndexService) ApplyCreateIndexRequest(current *metadata.ClusterState, req CreateIndexRequest) (*metadata.ClusterState, error) {
	name := req.Index
	if err := validation.ValidateIndexOrAliasName(name); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidName, err, "invalid index name [%s]", name)
	}
	if strings.ToLower(name) != name {
		return nil, errs.New(errs.ErrInvalidName, "invalid index name [%s], must be lowercase", name)
	}
	md := current.Metadata
	if _, exists := md.Index(name); exists {
		return nil, errs.New(errs.ErrAlreadyExists, "index [%s] already exists", name)
	}

	// Los backing indices se resuelven por el nombre del data stream, igual que
	// al elegir el template del data stream.
	var tmplName string
	var tmpl *metadata.ComposableTemplate
	if req.DataStreamName != "" {
		tmplName, _ = s.matcher.FindV2Template(md, req.DataStreamName, false)
	} else {
		tmplName, _ = s.matcher.FindV2Template(md, name, req.Settings.GetBool(metadata.SettingHidden, false))
	}
	if tmplName != "" {
		tmpl = md.Templates[tmplName]
	}

	settings := s.resolveSettings(current, name, tmpl, req.Settings)
	shards := settings.GetInt(metadata.SettingNumberOfShards, -1)
	replicas := settings.GetInt(metadata.SettingNumberOfReplicas, -1)
	if shards < 1 {
		return nil, errs.New(errs.ErrValidation, "index [%s] must have at least one shard, got [%s]", name, settings[metadata.SettingNumberOfShards])
	}
	if replicas < 0 {
		return nil, errs.New(errs.ErrValidation, "index [%s] number of replicas must be non-negative, got [%s]", name, settings[metadata.SettingNumberOfReplicas])
	}

	mappings := map[string]any{}
	if tmpl != nil && tmpl.Template != nil && tmpl.Template.Mappings != nil {
		mappings = mapping.Merge(mappings, mapping.Normalize(tmpl.Template.Mappings))
	}
	if req.Mappings != nil {
		mappings = mapping.Merge(mappings, mapping.Normalize(req.Mappings))
	}

	if req.DataStreamName != "" {
		field := tmpl.TimestampField()
		if field == "" {
			return nil, errs.Internal("backing index [%s] of data stream [%s] has no data stream template", name, req.DataStreamName)
		}
		if err := mapping.ValidateTimestampField(field, mapping.NewFieldTypes(mappings)); err != nil {
			return nil, err
		}
	}

	im := &metadata.IndexMetadata{
		Index:      metadata.Index{Name: name, UUID: settings[metadata.SettingUUID]},
		Settings:   settings,
		Mapping:    mappings,
		DataStream: req.DataStreamName,
	}
	newMD, err := md.Builder().PutIndex(im).Build()
	if err != nil {
		return nil, err
	}
	routing := current.RoutingTable.With(metadata.NewUnassignedIndexRouting(name, shards, replicas))

	s.log.Info("creating index",
		logger.Index(name),
		logger.String("cause", req.Cause),
		logger.Template(tmplName),
		logger.Int("shards", shards),
		logger.Int("replicas", replicas))

	return current.Builder().Metadata(newMD).RoutingTable(routing).Build(), nil
}

// resolveSettings combina defaults < template < request y agrega uuid y versión de creación.
func (s *CreateIndexService) resolveSettings(current *metadata.ClusterState, name string, tmpl *metadata.ComposableTemplate, req metadata.Settings) metadata.Settings {
	base := metadata.Settings{
		metadata.SettingNumberOfShards:   strconv.Itoa(s.defaults.NumberOfShards),
		metadata.SettingNumberOfReplicas: strconv.Itoa(s.defaults.NumberOfReplicas),
	}
	if tmpl != nil && tmpl.Template != nil {
		base = base.Merge(tmpl.Template.Settings)
	}
	out := base.Merge(req)
	out = out.Merge(metadata.Settings{
		metadata.SettingUUID:           IndexUUID(current.Metadata.ClusterUUID, name),
		metadata.SettingVersionCreated: current.Nodes.MinNodeVersion().String(),
	})
	return out
}

// IndexUUID es el uuid determinístico de un índice dentro de un cluster.
func IndexUUID(clusterUUID, name string) string {
	return uuid.NewSHA1(indexUUIDNamespace, []byte(clusterUUID+"/"+name)).String()
}
