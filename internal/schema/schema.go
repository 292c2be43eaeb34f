// Package schema derives the input column contract of a fitted pipeline.
package schema

import "credit-prediction/internal/pipeline"

// Schema lists the input features a pipeline expects, split by type, in fitted order.
type Schema struct {
	NumericFeatures     []string `json:"numeric_features"`
	CategoricalFeatures []string `json:"categorical_features"`

	numeric map[string]int
	categ   map[string]int
}

// Describe reflects the columns the preprocessing stage of p was fitted on.
func Describe(p *pipeline.Pipeline) *Schema {
	s := &Schema{
		NumericFeatures:     p.NumericFeatures(),
		CategoricalFeatures: p.CategoricalFeatures(),
	}
	s.numeric = index(s.NumericFeatures)
	s.categ = index(s.CategoricalFeatures)
	return s
}

// Empty is the schema reported when no pipeline is available.
func Empty() *Schema {
	return &Schema{NumericFeatures: []string{}, CategoricalFeatures: []string{}}
}

func index(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

// Columns returns the numeric features followed by the categorical features.
func (s *Schema) Columns() []string {
	out := make([]string, 0, len(s.NumericFeatures)+len(s.CategoricalFeatures))
	out = append(out, s.NumericFeatures...)
	return append(out, s.CategoricalFeatures...)
}

func (s *Schema) Len() int {
	return len(s.NumericFeatures) + len(s.CategoricalFeatures)
}

func (s *Schema) IsNumeric(name string) bool {
	_, ok := s.numeric[name]
	return ok
}

func (s *Schema) IsCategorical(name string) bool {
	_, ok := s.categ[name]
	return ok
}

// NumericIndex returns the position of name within NumericFeatures.
func (s *Schema) NumericIndex(name string) (int, bool) {
	i, ok := s.numeric[name]
	return i, ok
}

// CategoricalIndex returns the position of name within CategoricalFeatures.
func (s *Schema) CategoricalIndex(name string) (int, bool) {
	i, ok := s.categ[name]
	return i, ok
}
