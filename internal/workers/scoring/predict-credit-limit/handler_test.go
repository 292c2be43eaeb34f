package predictcreditlimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/inference"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/pipeline/pipelinetest"
	"credit-prediction/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T, st *store.Store) *Handler {
	if st == nil {
		st = store.New(map[string]*pipeline.Pipeline{
			config.KindRegression: pipelinetest.Build(t, pipelinetest.RegressionArtifact()),
		})
	}
	return NewHandler(&Config{Timeout: 5 * time.Second}, inference.NewEngine(st), logger.NewTestLogger(t))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]interface{}
		expected float64
	}{
		{
			name:     "low spender",
			payload:  map[string]interface{}{"Customer_Age": 45, "Gender": "M", "Card_Category": "Blue", "Total_Trans_Amt": 1144},
			expected: 6250,
		},
		{
			name:     "gold card high spender",
			payload:  map[string]interface{}{"Customer_Age": 60, "Gender": "F", "Card_Category": "Gold", "Total_Trans_Amt": 15000},
			expected: 13000,
		},
		{
			name:     "every field missing",
			payload:  map[string]interface{}{},
			expected: 4250,
		},
	}

	h := createTestHandler(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Execute(context.Background(), &Input{Payload: tt.payload, RequestID: "req-1"})
			require.NoError(t, err)
			assert.Equal(t, "RandomForestRegressor", out.ModelName)
			assert.Equal(t, tt.expected, out.PredictedCreditLimit)
			assert.GreaterOrEqual(t, out.RuntimeMS, 0.0)
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_Errors(t *testing.T) {
	classifierOnly := store.New(map[string]*pipeline.Pipeline{
		config.KindClassification: pipelinetest.Build(t, pipelinetest.ClassificationArtifact()),
	})

	tests := []struct {
		name     string
		store    *store.Store
		input    *Input
		wantCode errors.ErrorCode
	}{
		{"nil input", nil, nil, errors.ErrCodeInvalidPayload},
		{"missing payload", nil, &Input{}, errors.ErrCodeInvalidPayload},
		{"nested value", nil, &Input{Payload: map[string]interface{}{"a": map[string]interface{}{}}}, errors.ErrCodeInvalidPayload},
		{"regression not loaded", classifierOnly, &Input{Payload: map[string]interface{}{}}, errors.ErrCodeSchemaEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := createTestHandler(t, tt.store).Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))

			bpmn := errors.ConvertToBPMNError(errors.Normalize(TaskType, err))
			assert.Equal(t, string(tt.wantCode), bpmn.Code)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = map[string]config.WorkerConfig{TaskType: {Enabled: true, Timeout: 1500}}

	assert.Equal(t, 1500*time.Millisecond, LoadConfig(cfg).Timeout)
}
