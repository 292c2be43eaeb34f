package batch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/requestid"
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

func createTestEngine(t *testing.T, chunkSize int, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(logger.NewTestLogger(t))}, opts...)
	return NewEngine(createTestStore(t), config.BatchConfig{ChunkSize: chunkSize, MaxWorkers: 4}, opts...)
}

func score(t *testing.T, e *Engine, kind, csv string) (*Table, *Summary) {
	t.Helper()
	var out bytes.Buffer
	summary, err := e.Score(context.Background(), kind, strings.NewReader(csv), &out)
	require.NoError(t, err)

	table, err := ReadTable(&out)
	require.NoError(t, err)
	return table, summary
}

func column(t *testing.T, tbl *Table, name string) []string {
	t.Helper()
	idx := tbl.ColumnIndex(name)
	require.GreaterOrEqual(t, idx, 0, "column %s missing", name)
	out := make([]string, len(tbl.Rows))
	for i, r := range tbl.Rows {
		out[i] = r[idx]
	}
	return out
}

const regressionCSV = `Customer_Age,Gender,Card_Category,Total_Trans_Amt,Note
45,M,Blue,1144,a
60,F,Gold,15000,b
33,X,Platinum,1144,c
NA,None,NULL,nan,d
`

// ==========================
// Core Functionality Tests
// ==========================

func TestEngine_Score_Regression(t *testing.T) {
	e := createTestEngine(t, 1000)
	tbl, summary := score(t, e, "regression", regressionCSV)

	assert.Equal(t, []string{"Customer_Age", "Gender", "Card_Category", "Total_Trans_Amt", "Note", "pred_credit_limit"}, tbl.Header)
	require.Len(t, tbl.Rows, 4)
	// unseen Gender and Card values score like any other unknown category
	assert.Equal(t, []string{"6250", "13000", "6250", "4250"}, column(t, tbl, "pred_credit_limit"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, column(t, tbl, "Note"))
	assert.Equal(t, "None", tbl.Rows[3][1])

	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, "RandomForestRegressor", summary.ModelName)
	assert.Equal(t, []string{"pred_credit_limit"}, summary.Appended)
}

func TestEngine_Score_Classification(t *testing.T) {
	e := createTestEngine(t, 1000)
	tbl, _ := score(t, e, "classification", regressionCSV)

	assert.Equal(t, []string{"pred_tier", "proba_Low", "proba_Med", "proba_High"}, tbl.Header[5:])
	assert.Equal(t, []string{"Low", "High", "Low", "Low"}, column(t, tbl, "pred_tier"))

	for i, r := range tbl.Rows {
		var sum float64
		for _, cell := range r[6:] {
			v, err := strconv.ParseFloat(cell, 64)
			require.NoError(t, err)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", i)
	}
	low, err := strconv.ParseFloat(tbl.Rows[0][6], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, low, 1e-12)
}

func TestEngine_Score_HeaderOnly(t *testing.T) {
	e := createTestEngine(t, 1000)

	var out bytes.Buffer
	summary, err := e.Score(context.Background(), "classification", strings.NewReader("Customer_Age,Gender\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Rows)
	assert.Equal(t, "Customer_Age,Gender,pred_tier,proba_Low,proba_Med,proba_High\n", out.String())
}

func TestEngine_Score_ReplacesExistingOutputColumn(t *testing.T) {
	e := createTestEngine(t, 1000)
	tbl, _ := score(t, e, "regression", "pred_credit_limit,Total_Trans_Amt,Gender\nold,1144,M\n")

	assert.Equal(t, []string{"pred_credit_limit", "Total_Trans_Amt", "Gender"}, tbl.Header)
	assert.Equal(t, "6250", tbl.Rows[0][0])
}

func TestEngine_Score_NoSchemaColumns(t *testing.T) {
	e := createTestEngine(t, 1000)
	tbl, _ := score(t, e, "regression", "id\n1\n2\n")

	// every schema column is synthesized as missing
	assert.Equal(t, []string{"4250", "4250"}, column(t, tbl, "pred_credit_limit"))
	assert.Equal(t, []string{"1", "2"}, column(t, tbl, "id"))
}

func TestEngine_Score_ChunkInvariance(t *testing.T) {
	var b strings.Builder
	b.WriteString("Customer_Age,Dependent_count,Total_Trans_Amt,Gender,Card_Category\n")
	cards := []string{"Blue", "Silver", "Gold", "", "Platinum"}
	for i := 0; i < 53; i++ {
		fmt.Fprintf(&b, "%d,%d,%d,%s,%s\n", 20+i, i%5, 500+i*331, []string{"M", "F", "NA"}[i%3], cards[i%5])
	}
	input := b.String()

	for _, kind := range []string{"regression", "classification"} {
		var outputs []string
		for _, size := range []int{1, 7, 1000} {
			var out bytes.Buffer
			_, err := createTestEngine(t, size).Score(context.Background(), kind, strings.NewReader(input), &out)
			require.NoError(t, err)
			outputs = append(outputs, out.String())
		}
		assert.Equal(t, outputs[0], outputs[1], kind)
		assert.Equal(t, outputs[0], outputs[2], kind)
	}
}

func TestEngine_Score_RowCountAndColumnsPreserved(t *testing.T) {
	e := createTestEngine(t, 2)
	input := "b,a,Gender\n1,2,M\n3,4,F\n5,6,\n"

	tbl, _ := score(t, e, "classification", input)
	assert.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"b", "a", "Gender"}, tbl.Header[:3])
	assert.Equal(t, []string{"1", "3", "5"}, column(t, tbl, "b"))
}

// ==========================
// Error Handling Tests
// ==========================

func TestEngine_Score_Errors(t *testing.T) {
	regOnly := store.New(map[string]*pipeline.Pipeline{
		"regression": pipelinetest.Build(t, pipelinetest.RegressionArtifact()),
	})

	tests := []struct {
		name     string
		store    *store.Store
		kind     string
		input    string
		wantCode errors.ErrorCode
	}{
		{"empty upload", nil, "regression", "", errors.ErrCodeEmptyUpload},
		{"bom only upload", nil, "regression", "\ufeff", errors.ErrCodeEmptyUpload},
		{"ragged rows", nil, "regression", "a,b\n1,2\n3\n", errors.ErrCodeUnreadableFile},
		{"bare quote", nil, "regression", "a,b\n1,x\"y\n", errors.ErrCodeUnreadableFile},
		{"invalid utf-8 header", nil, "regression", "a,\xff\xfe\n1,2\n", errors.ErrCodeUnreadableFile},
		{"unknown mode", nil, "ranking", "a\n1\n", errors.ErrCodeInvalidMode},
		{"mode not loaded", regOnly, "classification", "a\n1\n", errors.ErrCodeNoPipelineLoaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.store
			if st == nil {
				st = createTestStore(t)
			}
			e := NewEngine(st, config.BatchConfig{ChunkSize: 10, MaxWorkers: 2})

			var out bytes.Buffer
			_, err := e.Score(context.Background(), tt.kind, strings.NewReader(tt.input), &out)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			assert.Zero(t, out.Len(), "no partial output")
		})
	}
}

func TestEngine_Score_CancelledContext(t *testing.T) {
	e := createTestEngine(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := e.Score(ctx, "regression", strings.NewReader(regressionCSV), &out)
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

// ==========================
// Notification Tests
// ==========================

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*Summary
}

func (n *recordingNotifier) BatchScored(_ context.Context, s *Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
}

func TestEngine_Score_Notifies(t *testing.T) {
	n := &recordingNotifier{}
	e := createTestEngine(t, 1000, WithNotifier(n))

	ctx := requestid.NewContext(context.Background(), "req-42")
	var out bytes.Buffer
	_, err := e.Score(ctx, "regression", strings.NewReader(regressionCSV), &out)
	require.NoError(t, err)

	require.Len(t, n.summaries, 1)
	assert.Equal(t, "regression", n.summaries[0].Kind)
	assert.Equal(t, 4, n.summaries[0].Rows)
	assert.Equal(t, "req-42", n.summaries[0].RequestID)

	_, err = e.Score(ctx, "regression", strings.NewReader(""), &out)
	assert.Error(t, err)
	assert.Len(t, n.summaries, 1)
}

func TestIsMissing(t *testing.T) {
	for _, m := range []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None"} {
		assert.True(t, IsMissing(m), m)
	}
	for _, v := range []string{"0", "none", "Blue", " "} {
		assert.False(t, IsMissing(v), v)
	}
}
