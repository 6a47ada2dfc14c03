package datastream

import (
	"errors"
	"strings"

	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/indices"
	"github.com/dropDatabas3/datastreams/internal/mapping"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/validation"
	"github.com/dropDatabas3/datastreams/internal/version"
)

// causeInitializeDataStream es la causa con la que se crea el primer backing index.
const causeInitializeDataStream = "initialize_data_stream"

// Provisioner crea índices dentro de un cluster state.
type Provisioner interface {
	ApplyCreateIndexRequest(current *metadata.ClusterState, req indices.CreateIndexRequest) (*metadata.ClusterState, error)
}

// TemplateMatcher resuelve el template V2 aplicable a un nombre.
type TemplateMatcher = indices.TemplateMatcher

// Deps son los colaboradores de la transición.
type Deps struct {
	Provisioner Provisioner
	Matcher     TemplateMatcher
}

// LookupTemplateForDataStream devuelve el template que aplica a name y que
// tiene que ser data-stream capable.
func LookupTemplateForDataStream(name string, md *metadata.Metadata, m TemplateMatcher) (*metadata.ComposableTemplate, error) {
	tmplName, ok := m.FindV2Template(md, name, false)
	if !ok {
		return nil, errs.New(errs.ErrNoMatchingTemplate, "no matching index template found for data stream [%s]", name)
	}
	tmpl, ok := md.Template(tmplName)
	if !ok {
		return nil, errs.Internal("matched index template [%s] for data stream [%s] is not in the metadata", tmplName, name)
	}
	if tmpl.DataStream == nil {
		return nil, errs.New(errs.ErrTemplateNotDataStreamCapable,
			"matching index template [%s] for data stream [%s] has no data stream template", tmplName, name)
	}
	return tmpl, nil
}

// CreateDataStream es la transición pura: devuelve un estado nuevo con el data
// stream y su primer backing index, o un error sin estado parcial.
func CreateDataStream(current *metadata.ClusterState, req CreateDataStreamRequest, deps Deps) (*metadata.ClusterState, error) {
	name := req.Name

	if current.Nodes.MinNodeVersion().Before(version.V7_9_0) {
		return nil, errs.New(errs.ErrUnsupportedClusterVersion, "data streams require minimum node version of %s", version.V7_9_0)
	}
	if _, exists := current.Metadata.DataStream(name); exists {
		return nil, errs.New(errs.ErrAlreadyExists, "data_stream [%s] already exists", name)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	tmpl, err := LookupTemplateForDataStream(name, current.Metadata, deps.Matcher)
	if err != nil {
		return nil, err
	}
	fieldName := tmpl.TimestampField()

	backingIndex := metadata.DefaultBackingIndexName(name, 1)
	next, err := deps.Provisioner.ApplyCreateIndexRequest(current, indices.CreateIndexRequest{
		Cause:          causeInitializeDataStream,
		Index:          backingIndex,
		DataStreamName: name,
		Settings:       metadata.Settings{metadata.SettingHidden: "true"},
	})
	if err != nil {
		if errs.Categorized(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrProvisioning, err, "failed to create backing index [%s] for data stream [%s]", backingIndex, name)
	}

	im, ok := next.Metadata.Index(backingIndex)
	if !ok {
		return nil, errs.Internal("backing index [%s] missing after provisioning", backingIndex)
	}
	if im.Mapping == nil {
		return nil, errs.Internal("no mapping found for backing index [%s]", backingIndex)
	}

	path, err := mapping.FieldPathToMappingPath(fieldName)
	if err != nil {
		return nil, err
	}
	fieldMapping, ok := mapping.Eval(path, im.Mapping)
	if !ok {
		return nil, errs.Internal("timestamp field [%s] not found in mapping of backing index [%s]", fieldName, backingIndex)
	}

	ds := metadata.NewDataStream(name,
		metadata.TimestampField{Name: fieldName, Mapping: mapping.DeepCopy(fieldMapping)},
		[]metadata.Index{im.Index})
	md, err := next.Metadata.Builder().PutDataStream(ds).Build()
	if err != nil {
		return nil, err
	}
	return next.Builder().Metadata(md).Build(), nil
}

// validateName aplica las reglas genéricas de nombres y las propias de data streams.
func validateName(name string) error {
	if err := validation.ValidateIndexOrAliasName(name); err != nil {
		reason := err.Error()
		var ne *validation.NameError
		if errors.As(err, &ne) {
			reason = ne.Reason
		}
		return errs.New(errs.ErrInvalidName, "data_stream [%s] %s", name, reason)
	}
	if strings.ToLower(name) != name {
		return errs.New(errs.ErrInvalidName, "data_stream [%s] must be lowercase", name)
	}
	if strings.HasPrefix(name, ".") {
		return errs.New(errs.ErrInvalidName, "data_stream [%s] must not start with '.'", name)
	}
	return nil
}
