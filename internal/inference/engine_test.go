package inference

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/database"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/pipeline/pipelinetest"
	"credit-prediction/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestStore(t *testing.T) *store.Store {
	return store.New(map[string]*pipeline.Pipeline{
		"regression":     pipelinetest.Build(t, pipelinetest.RegressionArtifact()),
		"classification": pipelinetest.Build(t, pipelinetest.ClassificationArtifact()),
	})
}

func realisticPayload() map[string]interface{} {
	return map[string]interface{}{
		"Customer_Age":    45,
		"Dependent_count": 3,
		"Months_on_book":  39,
		"Total_Trans_Amt": 1144.0,
		"Gender":          "M",
		"Income_Category": "$60K - $80K",
		"Card_Category":   "Blue",
	}
}

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewCache(client, time.Minute, logger.NewTestLogger(t)), mr
}

// ==========================
// Core Functionality Tests
// ==========================

func TestEngine_Predict_Regression(t *testing.T) {
	e := NewEngine(createTestStore(t))

	res, err := e.Predict(context.Background(), "regression", realisticPayload())
	require.NoError(t, err)

	assert.Equal(t, "RandomForestRegressor", res.ModelName)
	assert.Equal(t, 6250.0, res.Value)
	assert.True(t, res.Value > 0 && !math.IsInf(res.Value, 0))
	assert.GreaterOrEqual(t, res.RuntimeMS, 0.0)
	assert.Nil(t, res.Probabilities)
}

func TestEngine_Predict_Classification(t *testing.T) {
	e := NewEngine(createTestStore(t))

	res, err := e.Predict(context.Background(), "classification", realisticPayload())
	require.NoError(t, err)

	assert.Equal(t, "Low", res.Label)
	assert.Equal(t, []string{"Low", "Med", "High"}, res.Classes)
	require.Len(t, res.Probabilities, 3)

	var sum float64
	best := ""
	for label, p := range res.Probabilities {
		sum += p
		if best == "" || p > res.Probabilities[best] {
			best = label
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, best, res.Label)
}

func TestEngine_Predict_ZerosAndEmptyCategoricals(t *testing.T) {
	e := NewEngine(createTestStore(t))

	payload := map[string]interface{}{}
	for _, f := range pipelinetest.NumericFeatures {
		payload[f] = 0
	}
	for _, f := range pipelinetest.CategoricalFeatures {
		payload[f] = ""
	}

	res, err := e.Predict(context.Background(), "classification", payload)
	require.NoError(t, err)
	assert.Contains(t, []string{"Low", "Med", "High"}, res.Label)
	assert.Len(t, res.Probabilities, 3)
}

func TestEngine_Predict_MissingFieldsStillScore(t *testing.T) {
	e := NewEngine(createTestStore(t))

	for _, payload := range []map[string]interface{}{
		{},
		{"Customer_Age": 30},
		{"Gender": "F", "Unknown_Field": "x"},
		{"Total_Trans_Amt": "not a number", "Card_Category": 7},
	} {
		_, err := e.Predict(context.Background(), "regression", payload)
		assert.NoError(t, err)
		_, err = e.Predict(context.Background(), "classification", payload)
		assert.NoError(t, err)
	}
}

func TestEngine_Predict_Idempotent(t *testing.T) {
	e := NewEngine(createTestStore(t))

	a, err := e.Predict(context.Background(), "classification", realisticPayload())
	require.NoError(t, err)
	b, err := e.Predict(context.Background(), "classification", realisticPayload())
	require.NoError(t, err)

	assert.Equal(t, a.Probabilities, b.Probabilities)
	assert.Equal(t, a.Label, b.Label)
}

// ==========================
// Error Handling Tests
// ==========================

func TestEngine_Predict_Errors(t *testing.T) {
	clfOnly := store.New(map[string]*pipeline.Pipeline{
		"classification": pipelinetest.Build(t, pipelinetest.ClassificationArtifact()),
	})

	tests := []struct {
		name     string
		store    *store.Store
		kind     string
		payload  map[string]interface{}
		wantCode errors.ErrorCode
		detail   string
	}{
		{
			name:     "nested object",
			store:    createTestStore(t),
			kind:     "regression",
			payload:  map[string]interface{}{"Customer_Age": 40, "address": map[string]interface{}{"zip": "1"}},
			wantCode: errors.ErrCodeInvalidPayload,
			detail:   "payload.address",
		},
		{
			name:     "array value",
			store:    createTestStore(t),
			kind:     "classification",
			payload:  map[string]interface{}{"tags": []interface{}{"a"}},
			wantCode: errors.ErrCodeInvalidPayload,
			detail:   "payload.tags",
		},
		{
			name:     "nil payload",
			store:    createTestStore(t),
			kind:     "regression",
			wantCode: errors.ErrCodeInvalidPayload,
		},
		{
			name:     "kind not loaded",
			store:    clfOnly,
			kind:     "regression",
			payload:  realisticPayload(),
			wantCode: errors.ErrCodeSchemaEmpty,
		},
		{
			name:     "unknown kind",
			store:    createTestStore(t),
			kind:     "ranking",
			payload:  realisticPayload(),
			wantCode: errors.ErrCodeInvalidMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.store).Predict(context.Background(), tt.kind, tt.payload)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))

			stdErr := errors.Normalize("x", err)
			assert.Equal(t, "predict", stdErr.Operation)
			if tt.detail != "" {
				assert.Contains(t, stdErr.Details, tt.detail)
			}
		})
	}
}

func TestEngine_Predict_NonFiniteScoreIsInternalError(t *testing.T) {
	st := store.New(map[string]*pipeline.Pipeline{
		"regression": pipelinetest.Build(t, pipelinetest.LinearRegressionArtifact(1e6)),
	})
	e := NewEngine(st)

	res, err := e.Predict(context.Background(), "regression", map[string]interface{}{"Customer_Age": 40})
	require.NoError(t, err)
	assert.InDelta(t, 9000+1e6*(40-46.3)/8, res.Value, 1e-6)

	_, err = e.Predict(context.Background(), "regression", map[string]interface{}{"Customer_Age": json.Number("1e307")})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
	assert.Contains(t, errors.Normalize("predict", err).Unwrap().Error(), "non-finite")
}

// ==========================
// Cache Tests
// ==========================

func TestEngine_Predict_UsesCache(t *testing.T) {
	cache, mr := setupCache(t)
	e := NewEngine(createTestStore(t), WithCache(cache))

	first, err := e.Predict(context.Background(), "classification", realisticPayload())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Len(t, mr.Keys(), 1)

	second, err := e.Predict(context.Background(), "classification", realisticPayload())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Probabilities, second.Probabilities)
	assert.Equal(t, first.Label, second.Label)
}

func TestEngine_Predict_CacheKeyedByModelAndRow(t *testing.T) {
	p := pipelinetest.Build(t, pipelinetest.RegressionArtifact())
	sc := store.New(map[string]*pipeline.Pipeline{"regression": p})
	schemaRow, err := sc.Schema("regression")
	require.NoError(t, err)

	a := Key("regression", p.ModelName(), schemaRow.Row(realisticPayload()))
	b := Key("regression", p.ModelName(), schemaRow.Row(map[string]interface{}{"Customer_Age": 45}))
	c := Key("regression", "OtherModel", schemaRow.Row(realisticPayload()))

	assert.Contains(t, a, "pred:regression:RandomForestRegressor:")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	// extra keys do not change the reconciled row
	payload := realisticPayload()
	payload["ignored"] = true
	assert.Equal(t, a, Key("regression", p.ModelName(), schemaRow.Row(payload)))
}

func TestEngine_Predict_CacheFailureIgnored(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)
	cache := NewCache(database.NewRedisFromClient(client), time.Minute, logger.NewTestLogger(t))
	e := NewEngine(createTestStore(t), WithCache(cache))

	// no expectations registered: every command fails
	res, err := e.Predict(context.Background(), "regression", realisticPayload())
	require.NoError(t, err)
	assert.Equal(t, 6250.0, res.Value)
	assert.False(t, res.Cached)
}
