// Package pipeline decodes fitted preprocessing-plus-estimator artifacts and scores rows with them.
package pipeline

import (
	"fmt"
	"math"
)

// Pipeline is a fitted, immutable scoring function. It is safe for concurrent use.
type Pipeline struct {
	modelName   string
	task        string
	kind        string
	classes     []string
	importances []float64

	pre   *preprocessor
	model model
}

// New validates a decoded artifact and compiles it into a Pipeline.
func New(a *Artifact) (*Pipeline, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		modelName:   a.ModelName,
		task:        a.Task,
		kind:        a.Estimator.Kind,
		importances: append([]float64(nil), a.Estimator.FeatureImportances...),
		pre:         newPreprocessor(a.Preprocess),
		model:       newModel(a.Task, &a.Estimator),
	}
	for _, c := range a.Estimator.Classes {
		p.classes = append(p.classes, string(c))
	}
	return p, nil
}

func (p *Pipeline) ModelName() string { return p.modelName }

func (p *Pipeline) Task() string { return p.task }

// EstimatorKind is one of random_forest, gradient_boosting or linear.
func (p *Pipeline) EstimatorKind() string { return p.kind }

// NumericFeatures returns the numeric input columns in fitted order.
func (p *Pipeline) NumericFeatures() []string {
	return append([]string(nil), p.pre.numeric...)
}

// CategoricalFeatures returns the categorical input columns in fitted order.
func (p *Pipeline) CategoricalFeatures() []string {
	return append([]string(nil), p.pre.categorical...)
}

// Classes returns the class labels in native estimator order. Nil for regression.
func (p *Pipeline) Classes() []string {
	return append([]string(nil), p.classes...)
}

// NewRow returns a Row of the right shape with every value missing.
func (p *Pipeline) NewRow() Row {
	r := Row{
		Numeric:     make([]float64, len(p.pre.numeric)),
		Categorical: make([]string, len(p.pre.categorical)),
	}
	for i := range r.Numeric {
		r.Numeric[i] = math.NaN()
	}
	return r
}

// Importance is the importance of one input feature.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureImportances folds the estimator's per-column importances back onto the
// input features, in schema order. It returns nil if the artifact carries none.
func (p *Pipeline) FeatureImportances() []Importance {
	if len(p.importances) == 0 {
		return nil
	}
	pos := make(map[string]int, len(p.pre.numeric)+len(p.pre.categorical))
	var out []Importance
	for c, src := range p.pre.source {
		i, ok := pos[src]
		if !ok {
			i = len(out)
			pos[src] = i
			out = append(out, Importance{Feature: src})
		}
		out[i].Importance += p.importances[c]
	}
	return out
}

// Predict returns one regression value per row.
func (p *Pipeline) Predict(rows []Row) ([]float64, error) {
	if p.task != TaskRegression {
		return nil, fmt.Errorf("pipeline %s is not a regressor", p.modelName)
	}
	out := make([]float64, len(rows))
	buf := make([]float64, 1)
	err := p.each(rows, func(i int, x []float64) {
		p.model.score(x, buf)
		out[i] = buf[0]
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PredictProba returns one class distribution per row, aligned with Classes.
func (p *Pipeline) PredictProba(rows []Row) ([][]float64, error) {
	if p.task != TaskClassification {
		return nil, fmt.Errorf("pipeline %s is not a classifier", p.modelName)
	}
	out := make([][]float64, len(rows))
	err := p.each(rows, func(i int, x []float64) {
		proba := make([]float64, p.model.outputs())
		p.model.score(x, proba)
		out[i] = proba
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ArgMax returns the index of the largest probability. Ties go to the lowest index.
func ArgMax(proba []float64) int {
	best := 0
	for k := 1; k < len(proba); k++ {
		if proba[k] > proba[best] {
			best = k
		}
	}
	return best
}

func (p *Pipeline) each(rows []Row, fn func(i int, x []float64)) error {
	x := make([]float64, p.pre.width)
	for i, r := range rows {
		if err := p.pre.check(r); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		p.pre.transform(r, x)
		fn(i, x)
	}
	return nil
}
