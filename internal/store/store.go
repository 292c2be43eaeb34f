// Package store holds the fitted pipelines for the lifetime of the process.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/errgroup"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/metrics"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/schema"
)

// Kinds lists the pipeline kinds in reporting order.
var Kinds = []string{config.KindRegression, config.KindClassification}

// ValidKind reports whether kind names a pipeline kind.
func ValidKind(kind string) bool {
	return kind == config.KindRegression || kind == config.KindClassification
}

type entry struct {
	pipeline *pipeline.Pipeline
	schema   *schema.Schema
}

// Status describes the load outcome of one kind.
type Status struct {
	Kind      string `json:"kind"`
	Loaded    bool   `json:"loaded"`
	ModelName string `json:"model_name,omitempty"`
	Path      string `json:"path,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Store is read-only after construction and safe for concurrent use.
type Store struct {
	entries  map[string]*entry
	statuses map[string]Status
}

// Source names the artifact file backing one kind.
type Source struct {
	Kind string
	Path string
}

// SourcesFrom returns the configured artifact paths for every kind.
func SourcesFrom(cfg config.ArtifactsConfig) []Source {
	return []Source{
		{Kind: config.KindRegression, Path: cfg.Path(cfg.Regression)},
		{Kind: config.KindClassification, Path: cfg.Path(cfg.Classification)},
	}
}

// Load reads every source concurrently. A kind that fails to load is recorded
// as unavailable and never affects the others.
func Load(ctx context.Context, sources []Source, log logger.Logger) *Store {
	s := &Store{
		entries:  make(map[string]*entry, len(sources)),
		statuses: make(map[string]Status, len(sources)),
	}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			e, status := loadOne(ctx, src)

			mu.Lock()
			defer mu.Unlock()
			s.statuses[src.Kind] = status
			if e != nil {
				s.entries[src.Kind] = e
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, src := range sources {
		st := s.statuses[src.Kind]
		if st.Loaded {
			metrics.PipelineLoaded.WithLabelValues(src.Kind).Set(1)
			log.Info("Pipeline loaded", map[string]interface{}{
				"kind":      src.Kind,
				"modelName": st.ModelName,
				"path":      src.Path,
			})
			continue
		}
		metrics.PipelineLoaded.WithLabelValues(src.Kind).Set(0)
		log.Error("Pipeline unavailable", map[string]interface{}{
			"kind":      src.Kind,
			"path":      src.Path,
			"errorCode": st.ErrorCode,
			"error":     st.Error,
		})
	}
	return s
}

func loadOne(ctx context.Context, src Source) (*entry, Status) {
	status := Status{Kind: src.Kind, Path: src.Path}
	if err := ctx.Err(); err != nil {
		stdErr := errors.NewInternalError("load", err)
		status.ErrorCode, status.Error = string(stdErr.Code), err.Error()
		return nil, status
	}

	p, err := pipeline.Load(src.Path)
	if err == nil && p.Task() != src.Kind {
		err = fmt.Errorf("artifact task %q does not match kind %q", p.Task(), src.Kind)
	}
	if err != nil {
		var stdErr *errors.StandardError
		if stderrors.Is(err, fs.ErrNotExist) {
			stdErr = errors.NewArtifactMissingError(src.Kind, src.Path)
		} else {
			stdErr = errors.NewArtifactIncompatibleError(src.Kind, src.Path, err)
		}
		status.ErrorCode, status.Error = string(stdErr.Code), stdErr.Error()
		return nil, status
	}

	status.Loaded = true
	status.ModelName = p.ModelName()
	return &entry{pipeline: p, schema: schema.Describe(p)}, status
}

// New builds a Store from already compiled pipelines, keyed by kind.
func New(pipelines map[string]*pipeline.Pipeline) *Store {
	s := &Store{
		entries:  make(map[string]*entry, len(pipelines)),
		statuses: make(map[string]Status, len(Kinds)),
	}
	for _, kind := range Kinds {
		p, ok := pipelines[kind]
		if !ok || p == nil {
			s.statuses[kind] = Status{
				Kind:      kind,
				ErrorCode: string(errors.ErrCodeNoPipelineLoaded),
				Error:     "not configured",
			}
			continue
		}
		s.entries[kind] = &entry{pipeline: p, schema: schema.Describe(p)}
		s.statuses[kind] = Status{Kind: kind, Loaded: true, ModelName: p.ModelName()}
	}
	return s
}

// Get returns the pipeline for kind, or a NO_PIPELINE_LOADED error.
func (s *Store) Get(kind string) (*pipeline.Pipeline, error) {
	e, ok := s.entries[kind]
	if !ok {
		return nil, errors.NewNoPipelineLoadedError("", kind)
	}
	return e.pipeline, nil
}

// Schema returns the cached schema for kind, or a NO_PIPELINE_LOADED error.
func (s *Store) Schema(kind string) (*schema.Schema, error) {
	e, ok := s.entries[kind]
	if !ok {
		return nil, errors.NewNoPipelineLoadedError("", kind)
	}
	return e.schema, nil
}

// Status reports every kind in Kinds order.
func (s *Store) Status() []Status {
	out := make([]Status, 0, len(Kinds))
	for _, kind := range Kinds {
		st, ok := s.statuses[kind]
		if !ok {
			st = Status{Kind: kind, ErrorCode: string(errors.ErrCodeNoPipelineLoaded), Error: "not configured"}
		}
		out = append(out, st)
	}
	return out
}

// LoadedCount returns how many kinds are available.
func (s *Store) LoadedCount() int {
	return len(s.entries)
}

// DefaultKind returns preferred if it is loaded, else the first loaded kind in Kinds order.
// It returns preferred when nothing is loaded.
func (s *Store) DefaultKind(preferred string) string {
	if _, ok := s.entries[preferred]; ok {
		return preferred
	}
	for _, kind := range Kinds {
		if _, ok := s.entries[kind]; ok {
			return kind
		}
	}
	return preferred
}
