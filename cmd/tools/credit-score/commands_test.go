package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/api"
	"credit-prediction/internal/batch"
	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/inference"
	"credit-prediction/internal/metadata"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/pipeline/pipelinetest"
	"credit-prediction/internal/store"
)

func artifactsDir(t *testing.T) string {
	dir := t.TempDir()
	pipelinetest.WriteArtifact(t, dir, "best_regression_pipeline.json", pipelinetest.RegressionArtifact())
	pipelinetest.WriteArtifact(t, dir, "best_classification_pipeline.json", pipelinetest.ClassificationArtifact())
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "", "schema", "--artifacts", artifactsDir(t), "--kind", "classification")
	require.NoError(t, err)

	var sc map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &sc))
	assert.Equal(t, pipelinetest.CategoricalFeatures, sc["categorical_features"])
}

func TestSchemaCommand_MissingArtifacts(t *testing.T) {
	_, err := run(t, "", "schema", "--artifacts", t.TempDir())
	assert.Equal(t, errors.ErrCodeSchemaEmpty, errors.CodeOf(err))
}

func TestPredictCommand(t *testing.T) {
	dir := artifactsDir(t)

	out, err := run(t, "", "predict", "--artifacts", dir, "--payload", `{"Customer_Age": 45, "Gender": "M", "Total_Trans_Amt": 1144}`)
	require.NoError(t, err)
	var reg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Equal(t, 6250.0, reg["predicted_credit_limit"])

	out, err = run(t, `{"Card_Category": "Gold", "Total_Trans_Amt": 15000, "Customer_Age": 60}`, "predict", "--artifacts", dir, "--kind", "classification")
	require.NoError(t, err)
	var clf map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &clf))
	assert.Equal(t, "High", clf["predicted_tier"])

	_, err = run(t, "", "predict", "--artifacts", dir, "--payload", `[1]`)
	assert.Equal(t, errors.ErrCodeInvalidPayload, errors.CodeOf(err))
}

func TestBatchCommand(t *testing.T) {
	dir := artifactsDir(t)
	in := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(in, []byte("Customer_Age,Gender,Total_Trans_Amt\n45,M,1144\n"), 0o600))
	outPath := filepath.Join(t.TempDir(), "scored.csv")

	_, err := run(t, "", "batch", "--artifacts", dir, "--in", in, "--out", outPath)
	require.NoError(t, err)
	scored, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "Customer_Age,Gender,Total_Trans_Amt,pred_credit_limit\n45,M,1144,6250\n", string(scored))

	out, err := run(t, "a\n1\n", "batch", "--artifacts", dir, "--mode", "classification")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "a,pred_tier,proba_Low,proba_Med,proba_High\n"))
}

func TestBatchCommand_FailureLeavesNoFile(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "scored.csv")
	_, err := run(t, "", "batch", "--artifacts", artifactsDir(t), "--out", outPath)

	assert.Equal(t, errors.ErrCodeEmptyUpload, errors.CodeOf(err))
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTasksCommand(t *testing.T) {
	out, err := run(t, "", "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "predict-credit-limit")
	assert.Contains(t, out, "predict-credit-tier")

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities":[{"id":"x","taskType":"x","implementationStatus":"planned"}]}`), 0o600))
	out, err = run(t, "", "tasks", "--registry", path)
	require.NoError(t, err)
	assert.Contains(t, out, "planned")
	assert.NotContains(t, out, "predict-credit-tier")
}

func TestPredictCommand_Server(t *testing.T) {
	st := store.New(map[string]*pipeline.Pipeline{
		config.KindRegression: pipelinetest.Build(t, pipelinetest.RegressionArtifact()),
	})
	log := logger.NewTestLogger(t)
	srv := api.NewServer(config.ServerConfig{MaxUploadBytes: 1 << 20}, api.Dependencies{
		Store:     st,
		Inference: inference.NewEngine(st),
		Batch:     batch.NewEngine(st, config.BatchConfig{ChunkSize: 10, MaxWorkers: 1}),
		Reporter:  metadata.NewReporter(st, nil, config.ServingConfig{}, log),
		Logger:    log,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out, err := run(t, "", "--server", ts.URL, "predict", "--payload", `{"Customer_Age": 45, "Gender": "M", "Total_Trans_Amt": 1144}`)
	require.NoError(t, err)
	var reg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Equal(t, 6250.0, reg["predicted_credit_limit"])

	_, err = run(t, "", "--server", ts.URL, "predict", "--kind", "classification", "--payload", `{}`)
	assert.Equal(t, errors.ErrCodeSchemaEmpty, errors.CodeOf(err))

	out, err = run(t, "Gender,Total_Trans_Amt\nM,1144\n", "--server", ts.URL, "batch")
	require.NoError(t, err)
	assert.Equal(t, "Gender,Total_Trans_Amt,pred_credit_limit\nM,1144,6250\n", out)
}
