package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/pipeline/pipelinetest"
)

func sources(dir string) []Source {
	return SourcesFrom(config.ArtifactsConfig{
		Dir:            dir,
		Regression:     "reg.json",
		Classification: "clf.json",
	})
}

func TestLoad_BothKinds(t *testing.T) {
	dir := t.TempDir()
	pipelinetest.WriteArtifact(t, dir, "reg.json", pipelinetest.RegressionArtifact())
	pipelinetest.WriteArtifact(t, dir, "clf.json", pipelinetest.ClassificationArtifact())

	s := Load(context.Background(), sources(dir), logger.NewTestLogger(t))

	assert.Equal(t, 2, s.LoadedCount())
	p, err := s.Get(config.KindClassification)
	require.NoError(t, err)
	assert.Equal(t, "RandomForestClassifier", p.ModelName())

	sc, err := s.Schema(config.KindRegression)
	require.NoError(t, err)
	assert.Equal(t, pipelinetest.NumericFeatures, sc.NumericFeatures)

	statuses := s.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, config.KindRegression, statuses[0].Kind)
	assert.True(t, statuses[0].Loaded)
	assert.Equal(t, "RandomForestRegressor", statuses[0].ModelName)
}

func TestLoad_OneKindFails(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, dir string)
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing file",
			setup:    func(t *testing.T, dir string) {},
			wantCode: errors.ErrCodeArtifactMissing,
		},
		{
			name: "malformed file",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "reg.json"), []byte("not json"), 0o600))
			},
			wantCode: errors.ErrCodeArtifactIncompatible,
		},
		{
			name: "task does not match kind",
			setup: func(t *testing.T, dir string) {
				pipelinetest.WriteArtifact(t, dir, "reg.json", pipelinetest.ClassificationArtifact())
			},
			wantCode: errors.ErrCodeArtifactIncompatible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			pipelinetest.WriteArtifact(t, dir, "clf.json", pipelinetest.ClassificationArtifact())

			s := Load(context.Background(), sources(dir), logger.NewNoOpLogger())

			_, err := s.Get(config.KindRegression)
			assert.True(t, errors.Is(err, errors.ErrCodeNoPipelineLoaded))
			_, err = s.Schema(config.KindRegression)
			assert.Error(t, err)

			_, err = s.Get(config.KindClassification)
			assert.NoError(t, err)

			st := s.Status()[0]
			assert.False(t, st.Loaded)
			assert.Equal(t, string(tt.wantCode), st.ErrorCode)
			assert.NotEmpty(t, st.Error)
			assert.Equal(t, 1, s.LoadedCount())
		})
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	pipelinetest.WriteArtifact(t, dir, "reg.json", pipelinetest.RegressionArtifact())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := Load(ctx, sources(dir), logger.NewNoOpLogger())
	assert.Equal(t, 0, s.LoadedCount())
}

func TestNew_DefaultKind(t *testing.T) {
	clf := pipelinetest.Build(t, pipelinetest.ClassificationArtifact())
	s := New(map[string]*pipeline.Pipeline{config.KindClassification: clf})

	assert.Equal(t, config.KindClassification, s.DefaultKind(config.KindRegression))
	assert.Equal(t, config.KindClassification, s.DefaultKind(config.KindClassification))

	empty := New(nil)
	assert.Equal(t, config.KindRegression, empty.DefaultKind(config.KindRegression))
	assert.False(t, empty.Status()[1].Loaded)
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind("regression"))
	assert.True(t, ValidKind("classification"))
	assert.False(t, ValidKind("Regression"))
	assert.False(t, ValidKind(""))
}
