package templates

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"github.com/dropDatabas3/datastreams/internal/validation"
	"go.uber.org/zap"
)

// Submitter es la parte del pipeline de cluster que usa el servicio.
type Submitter interface {
	SubmitStateUpdateTask(source string, task cluster.UpdateTask)
}

// Service registra composable templates como tareas del cluster.
type Service struct {
	cluster       Submitter
	masterTimeout time.Duration
	log           *zap.Logger
}

// NewService crea el servicio. masterTimeout=0 usa 30s.
func NewService(c Submitter, masterTimeout time.Duration) *Service {
	if masterTimeout <= 0 {
		masterTimeout = 30 * time.Second
	}
	return &Service{cluster: c, masterTimeout: masterTimeout, log: logger.Named("templates")}
}

// PutComposableTemplate valida y agrega (o reemplaza) el template. Bloquea hasta
// el commit o hasta que venza ctx.
func (s *Service) PutComposableTemplate(ctx context.Context, name string, t *metadata.ComposableTemplate) (cluster.Response, error) {
	type result struct {
		resp cluster.Response
		err  error
	}
	ch := make(chan result, 1)
	source := "create-index-template-v2 [" + name + "]"
	s.cluster.SubmitStateUpdateTask(source, &cluster.AckedRequest{
		Prio:          cluster.PriorityUrgent,
		MasterTimeout: s.masterTimeout,
		AckWait:       s.masterTimeout,
		Run: func(current *metadata.ClusterState) (*metadata.ClusterState, error) {
			return AddComposableTemplate(current, name, t)
		},
		Listener: func(resp cluster.Response, err error) { ch <- result{resp, err} },
	})

	select {
	case r := <-ch:
		if r.err == nil {
			s.log.Info("adding index template", logger.Template(name))
		}
		return r.resp, r.err
	case <-ctx.Done():
		return cluster.Response{}, ctx.Err()
	}
}

// AddComposableTemplate es la transición pura que agrega el template al estado.
// Si ya existe uno idéntico devuelve el mismo estado.
func AddComposableTemplate(current *metadata.ClusterState, name string, t *metadata.ComposableTemplate) (*metadata.ClusterState, error) {
	if err := Validate(name, t); err != nil {
		return nil, err
	}
	if err := checkOverlap(current.Metadata, name, t); err != nil {
		return nil, err
	}
	md, err := current.Metadata.Builder().PutTemplate(name, t).Build()
	if err != nil {
		return nil, err
	}
	return current.Builder().Metadata(md).Build(), nil
}

// Validate revisa nombre, patrones y el campo de timestamp del template.
func Validate(name string, t *metadata.ComposableTemplate) error {
	switch {
	case name == "":
		return errs.New(errs.ErrInvalidName, "index template name must not be empty")
	case strings.ToLower(name) != name:
		return errs.New(errs.ErrInvalidName, "index template [%s] name must be lowercase", name)
	case strings.HasPrefix(name, "_"):
		return errs.New(errs.ErrInvalidName, "index template [%s] name must not start with '_'", name)
	case strings.ContainsAny(name, " ,#"):
		return errs.New(errs.ErrInvalidName, "index template [%s] name must not contain a space, ',' or '#'", name)
	}
	if t == nil {
		return errs.New(errs.ErrValidation, "index template [%s] is empty", name)
	}
	if len(t.IndexPatterns) == 0 {
		return errs.New(errs.ErrValidation, "index template [%s] must define at least one index pattern", name)
	}
	for _, p := range t.IndexPatterns {
		if err := validatePattern(p); err != nil {
			return errs.New(errs.ErrValidation, "index template [%s] invalid index pattern [%s]: %s", name, p, err)
		}
	}
	if t.DataStream != nil {
		f := t.DataStream.TimestampField
		if f == "" {
			return errs.New(errs.ErrValidation, "index template [%s] data stream timestamp field must not be empty", name)
		}
		for _, seg := range strings.Split(f, ".") {
			if seg == "" {
				return errs.New(errs.ErrValidation, "index template [%s] illegal timestamp field [%s]", name, f)
			}
		}
	}
	return nil
}

func validatePattern(p string) error {
	if p == "" {
		return errString("must not be empty")
	}
	if strings.HasPrefix(p, "_") {
		return errString("must not start with '_'")
	}
	for _, c := range validation.InvalidFilenameChars {
		if c == "*" {
			continue
		}
		if strings.Contains(p, c) {
			return errString("must not contain '" + c + "'")
		}
	}
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

// checkOverlap rechaza templates de la misma prioridad con patrones que pueden
// matchear el mismo índice: el resultado del match sería ambiguo.
func checkOverlap(md *metadata.Metadata, name string, t *metadata.ComposableTemplate) error {
	for other, ot := range md.Templates {
		if other == name || ot.Priority != t.Priority {
			continue
		}
		for _, a := range t.IndexPatterns {
			for _, b := range ot.IndexPatterns {
				if patternsOverlap(a, b) {
					return errs.New(errs.ErrValidation,
						"index template [%s] has index patterns %v matching patterns from existing templates [%s] with patterns (%s => %v) that have the same priority [%d], multiple index templates may not match during index creation, please use a different priority",
						name, t.IndexPatterns, other, other, ot.IndexPatterns, t.Priority)
				}
			}
		}
	}
	return nil
}

// patternsOverlap es una aproximación conservadora de la intersección de dos globs.
func patternsOverlap(a, b string) bool {
	ga, gb := compileGlob(a), compileGlob(b)
	if ga.matches(b) || gb.matches(a) {
		return true
	}
	if !ga.wildcard || !gb.wildcard {
		return false
	}
	pa, pb := ga.literalPrefix(), gb.literalPrefix()
	return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
}
