package pipeline_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/pipeline"
)

func TestBundledArtifactsLoad(t *testing.T) {
	reg, err := pipeline.Load(filepath.Join("..", "..", "artifacts", "best_regression_pipeline.json"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.TaskRegression, reg.Task())
	assert.Equal(t, pipeline.EstimatorGradientBoosting, reg.EstimatorKind())

	out, err := reg.Predict([]pipeline.Row{reg.NewRow()})
	require.NoError(t, err)
	assert.Greater(t, out[0], 0.0)

	cls, err := pipeline.Load(filepath.Join("..", "..", "artifacts", "best_classification_pipeline.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Low", "Medium", "High"}, cls.Classes())

	proba, err := cls.PredictProba([]pipeline.Row{cls.NewRow()})
	require.NoError(t, err)
	var sum float64
	for _, p := range proba[0] {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, reg.NumericFeatures(), cls.NumericFeatures())
}
