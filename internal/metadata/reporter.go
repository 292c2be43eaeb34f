// Package metadata reports the descriptive information served next to the predictions.
package metadata

import (
	"context"
	"sort"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/schema"
	"credit-prediction/internal/store"
)

const (
	DefaultTrainingSummary = "80/20 train/test split with a fixed seed. Numeric columns are median imputed " +
		"and standardized, categorical columns are most-frequent imputed and one-hot encoded with unknown " +
		"categories ignored. Models are trained offline; this service performs inference only."
	DefaultModelChoiceRationale = "Random forest was chosen over linear and gradient boosted models for its " +
		"accuracy and variance balance on roughly 10k tabular rows, its robustness to outliers and its " +
		"low tuning sensitivity."

	defaultImportanceLimit = 20
)

// Meta is the aggregated metadata document. Unavailable parts are omitted.
type Meta struct {
	RegressionMetrics     []Record       `json:"regression_metrics_table,omitempty"`
	ClassificationMetrics []Record       `json:"classification_metrics_table,omitempty"`
	TrainingSummary       string         `json:"training_summary"`
	ModelChoiceRationale  string         `json:"model_choice_rationale"`
	Attributes            *schema.Schema `json:"attributes,omitempty"`
	SchemaKind            string         `json:"schema_kind,omitempty"`
	Models                []store.Status `json:"models"`
}

type Reporter struct {
	store  *store.Store
	source MetricsSource
	cfg    config.ServingConfig
	logger logger.Logger
}

func NewReporter(st *store.Store, source MetricsSource, cfg config.ServingConfig, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if cfg.TrainingSummary == "" {
		cfg.TrainingSummary = DefaultTrainingSummary
	}
	if cfg.ModelChoiceRationale == "" {
		cfg.ModelChoiceRationale = DefaultModelChoiceRationale
	}
	if cfg.ImportanceLimit <= 0 {
		cfg.ImportanceLimit = defaultImportanceLimit
	}
	return &Reporter{store: st, source: source, cfg: cfg, logger: log}
}

// Meta fails only when no pipeline is loaded at all.
func (r *Reporter) Meta(ctx context.Context) (*Meta, error) {
	if r.store.LoadedCount() == 0 {
		return nil, errors.NewNoPipelineLoadedError("meta", r.cfg.DefaultSchemaKind)
	}

	m := &Meta{
		TrainingSummary:      r.cfg.TrainingSummary,
		ModelChoiceRationale: r.cfg.ModelChoiceRationale,
		Models:               r.store.Status(),
	}

	kind := r.store.DefaultKind(r.cfg.DefaultSchemaKind)
	if sc, err := r.store.Schema(kind); err == nil {
		m.Attributes = sc
		m.SchemaKind = kind
	}

	m.RegressionMetrics = r.table(ctx, config.KindRegression)
	m.ClassificationMetrics = r.table(ctx, config.KindClassification)
	return m, nil
}

func (r *Reporter) table(ctx context.Context, kind string) []Record {
	if r.source == nil {
		return nil
	}
	t, err := r.source.Table(ctx, kind)
	if err != nil {
		r.logger.Warn("Metrics table unavailable", map[string]interface{}{
			"kind":  kind,
			"error": err.Error(),
		})
		return nil
	}
	return t
}

// GlobalImportance returns the most important input features of the kind's
// pipeline, in descending order. A limit <= 0 uses the configured limit.
// Pipelines without importances yield an empty list.
func (r *Reporter) GlobalImportance(kind string, limit int) ([]pipeline.Importance, error) {
	if kind == "" {
		kind = r.store.DefaultKind(r.cfg.DefaultSchemaKind)
	}
	if !store.ValidKind(kind) {
		return nil, errors.NewInvalidModeError("global-importance", kind)
	}
	p, err := r.store.Get(kind)
	if err != nil {
		return nil, errors.NewNoPipelineLoadedError("global-importance", kind)
	}
	if limit <= 0 {
		limit = r.cfg.ImportanceLimit
	}

	features := p.FeatureImportances()
	if features == nil {
		return []pipeline.Importance{}, nil
	}
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Importance > features[j].Importance
	})
	if len(features) > limit {
		features = features[:limit]
	}
	return features, nil
}
