// Package pipelinetest provides small fitted artifacts for tests.
package pipelinetest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"credit-prediction/internal/pipeline"
)

// Transformed column layout shared by the fixtures:
//
//	0 Customer_Age, 1 Dependent_count, 2 Months_on_book, 3 Total_Trans_Amt,
//	4 Gender=F, 5 Gender=M,
//	6..8 Income_Category, 9 Card=Blue, 10 Card=Silver, 11 Card=Gold
var (
	NumericFeatures     = []string{"Customer_Age", "Dependent_count", "Months_on_book", "Total_Trans_Amt"}
	CategoricalFeatures = []string{"Gender", "Income_Category", "Card_Category"}
	Classes             = []string{"Low", "Med", "High"}
)

const Width = 12

func preprocess() pipeline.Preprocess {
	return pipeline.Preprocess{
		Numeric: pipeline.NumericStage{
			Features: append([]string(nil), NumericFeatures...),
			Impute:   []float64{46, 2, 36, 3899},
			Mean:     []float64{46.3, 2.3, 35.9, 4404},
			Scale:    []float64{8, 1.3, 8, 3397},
		},
		Categorical: pipeline.CategoricalStage{
			Features: append([]string(nil), CategoricalFeatures...),
			Impute:   []string{"F", "Less than $40K", "Blue"},
			Categories: [][]string{
				{"F", "M"},
				{"$40K - $60K", "Less than $40K", "$60K - $80K"},
				{"Blue", "Silver", "Gold"},
			},
		},
	}
}

func stump(feature int, threshold float64, root, left, right []float64) pipeline.Tree {
	return pipeline.Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{feature, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         [][]float64{root, left, right},
	}
}

// spendThenGold splits on Total_Trans_Amt, then on the Gold card column.
func spendThenGold(root, low, notGold, gold []float64) pipeline.Tree {
	return pipeline.Tree{
		ChildrenLeft:  []int{1, -1, 3, -1, -1},
		ChildrenRight: []int{2, -1, 4, -1, -1},
		Feature:       []int{3, -2, 11, -2, -2},
		Threshold:     []float64{0, -2, 0.5, -2, -2},
		Value:         [][]float64{root, low, root, notGold, gold},
	}
}

// RegressionArtifact is a two-tree random forest regressor. Leaf averages:
// low spend 3500 or 8000/21000 by card, plus Gender=M 9000 else 5000.
func RegressionArtifact() *pipeline.Artifact {
	return &pipeline.Artifact{
		FormatVersion: pipeline.FormatVersion,
		ModelName:     "RandomForestRegressor",
		Task:          pipeline.TaskRegression,
		Preprocess:    preprocess(),
		Estimator: pipeline.Estimator{
			Kind: pipeline.EstimatorRandomForest,
			Trees: []pipeline.Tree{
				spendThenGold([]float64{9000}, []float64{3500}, []float64{8000}, []float64{21000}),
				stump(4, 0.5, []float64{7000}, []float64{9000}, []float64{5000}),
			},
			FeatureImportances: []float64{0.05, 0, 0, 0.45, 0.2, 0, 0, 0, 0, 0.1, 0, 0.2},
		},
	}
}

// ClassificationArtifact is a two-tree random forest classifier over Low, Med, High.
func ClassificationArtifact() *pipeline.Artifact {
	labels := make([]pipeline.Label, len(Classes))
	for i, c := range Classes {
		labels[i] = pipeline.Label(c)
	}
	return &pipeline.Artifact{
		FormatVersion: pipeline.FormatVersion,
		ModelName:     "RandomForestClassifier",
		Task:          pipeline.TaskClassification,
		Preprocess:    preprocess(),
		Estimator: pipeline.Estimator{
			Kind:    pipeline.EstimatorRandomForest,
			Classes: labels,
			Trees: []pipeline.Tree{
				spendThenGold([]float64{10, 10, 10}, []float64{8, 2, 0}, []float64{1, 6, 3}, []float64{0, 1, 9}),
				stump(0, 0, []float64{8, 9, 3}, []float64{3, 5, 2}, []float64{5, 4, 1}),
			},
			FeatureImportances: []float64{0.3, 0, 0, 0.4, 0, 0, 0, 0, 0, 0, 0, 0.3},
		},
	}
}

// LinearRegressionArtifact is a linear regressor whose only non-zero weight is
// ageWeight on the scaled Customer_Age column.
func LinearRegressionArtifact(ageWeight float64) *pipeline.Artifact {
	coef := make([]float64, Width)
	coef[0] = ageWeight
	return &pipeline.Artifact{
		FormatVersion: pipeline.FormatVersion,
		ModelName:     "LinearRegression",
		Task:          pipeline.TaskRegression,
		Preprocess:    preprocess(),
		Estimator: pipeline.Estimator{
			Kind:      pipeline.EstimatorLinear,
			Coef:      [][]float64{coef},
			Intercept: []float64{9000},
		},
	}
}

// Build compiles a fixture artifact, failing the test on error.
func Build(t testing.TB, a *pipeline.Artifact) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(a)
	if err != nil {
		t.Fatalf("build fixture pipeline: %v", err)
	}
	return p
}

// WriteArtifact writes a as JSON to dir/name and returns the path.
func WriteArtifact(t testing.TB, dir, name string, a *pipeline.Artifact) string {
	t.Helper()
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("encode artifact: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}
