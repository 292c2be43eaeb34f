// Package inference scores single records against the loaded pipelines.
package inference

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/metrics"
	"credit-prediction/internal/common/observability"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/store"
)

const operation = "predict"

// Result is the outcome of scoring one record.
type Result struct {
	Kind      string
	ModelName string

	// regression
	Value float64

	// classification
	Label         string
	Classes       []string
	Probabilities map[string]float64

	RuntimeMS float64
	Cached    bool
}

type Engine struct {
	store  *store.Store
	cache  *Cache
	obs    *observability.Observability
	logger logger.Logger
}

type Option func(*Engine)

func WithCache(c *Cache) Option { return func(e *Engine) { e.cache = c } }

func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(st *store.Store, opts ...Option) *Engine {
	e := &Engine{store: st, logger: logger.NewNoOpLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict scores payload with the pipeline of the given kind. payload must be a
// flat mapping of scalars; fields missing from it are imputed by the pipeline.
func (e *Engine) Predict(ctx context.Context, kind string, payload map[string]interface{}) (*Result, error) {
	ctx, span := e.obs.StartSpan(ctx, "inference.predict", attribute.String("kind", kind))
	defer span.End()

	res, err := e.predict(ctx, kind, payload)
	if err != nil {
		stdErr := errors.Normalize(operation, err)
		metrics.PredictionFailures.WithLabelValues(kind, string(stdErr.Code)).Inc()
		span.SetStatus(codes.Error, string(stdErr.Code))
		return nil, stdErr
	}

	metrics.PredictionsTotal.WithLabelValues(kind).Inc()
	span.SetAttributes(attribute.String("model_name", res.ModelName), attribute.Bool("cached", res.Cached))
	return res, nil
}

func (e *Engine) predict(ctx context.Context, kind string, payload map[string]interface{}) (*Result, error) {
	if !store.ValidKind(kind) {
		return nil, errors.NewInvalidModeError(operation, kind)
	}
	if payload == nil {
		return nil, errors.NewInvalidPayloadError(operation, "payload: must be an object")
	}
	if err := CheckFlat(payload); err != nil {
		return nil, err
	}

	p, err := e.store.Get(kind)
	if err != nil {
		return nil, errors.NewSchemaEmptyError(operation, kind)
	}
	sc, err := e.store.Schema(kind)
	if err != nil {
		return nil, errors.NewSchemaEmptyError(operation, kind)
	}

	start := time.Now()
	row := sc.Row(payload)

	var key string
	if e.cache != nil {
		key = Key(kind, p.ModelName(), row)
		if s, ok := e.cache.get(ctx, key); ok && s.valid(p) {
			metrics.PredictionCacheHits.WithLabelValues(kind).Inc()
			res := buildResult(kind, p, s)
			res.Cached = true
			res.RuntimeMS = elapsedMS(start)
			return res, nil
		}
	}

	s, err := scoreRow(p, row)
	if err != nil {
		return nil, errors.NewInternalError(operation, err)
	}
	elapsed := time.Since(start)
	metrics.PredictionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if e.cache != nil {
		e.cache.put(ctx, key, s)
	}

	res := buildResult(kind, p, s)
	res.RuntimeMS = float64(elapsed.Microseconds()) / 1000
	return res, nil
}

func scoreRow(p *pipeline.Pipeline, row pipeline.Row) (*score, error) {
	rows := []pipeline.Row{row}
	if p.Task() == pipeline.TaskRegression {
		v, err := p.Predict(rows)
		if err != nil {
			return nil, err
		}
		if !finite(v[0]) {
			return nil, fmt.Errorf("%s produced a non-finite prediction", p.ModelName())
		}
		return &score{Value: v[0]}, nil
	}
	proba, err := p.PredictProba(rows)
	if err != nil {
		return nil, err
	}
	for _, v := range proba[0] {
		if !finite(v) {
			return nil, fmt.Errorf("%s produced a non-finite class probability", p.ModelName())
		}
	}
	return &score{Proba: proba[0]}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// valid rejects cached entries that do not fit the pipeline's output shape.
func (s *score) valid(p *pipeline.Pipeline) bool {
	if p.Task() == pipeline.TaskRegression {
		return s.Proba == nil
	}
	return len(s.Proba) == len(p.Classes())
}

func buildResult(kind string, p *pipeline.Pipeline, s *score) *Result {
	res := &Result{Kind: kind, ModelName: p.ModelName()}
	if p.Task() == pipeline.TaskRegression {
		res.Value = s.Value
		return res
	}
	res.Classes = p.Classes()
	res.Probabilities = make(map[string]float64, len(res.Classes))
	for i, c := range res.Classes {
		res.Probabilities[c] = s.Proba[i]
	}
	res.Label = res.Classes[pipeline.ArgMax(s.Proba)]
	return res
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// CheckFlat rejects nested objects and arrays, naming the first offending field.
func CheckFlat(payload map[string]interface{}) error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch payload[k].(type) {
		case map[string]interface{}:
			return errors.NewInvalidPayloadError(operation, fmt.Sprintf("payload.%s: nested objects are not allowed", k))
		case []interface{}:
			return errors.NewInvalidPayloadError(operation, fmt.Sprintf("payload.%s: arrays are not allowed", k))
		}
	}
	return nil
}
