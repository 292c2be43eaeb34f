package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/requestid"
)

func TestClient_Predict(t *testing.T) {
	var gotBody map[string]interface{}
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/classification", r.URL.Path)
		gotID = r.Header.Get(requestid.Header)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"predicted_tier":"Low"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	ctx := requestid.NewContext(context.Background(), "cli-1")
	raw, err := client.Predict(ctx, "classification", map[string]interface{}{"Gender": "M"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"predicted_tier":"Low"}`, string(raw))
	assert.Equal(t, map[string]interface{}{"payload": map[string]interface{}{"Gender": "M"}}, gotBody)
	assert.Equal(t, "cli-1", gotID)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errors.ErrorCode
	}{
		{
			name:     "server error envelope",
			status:   http.StatusConflict,
			body:     `{"error":{"code":"SCHEMA_EMPTY","operation":"predict/regression","message":"no pipeline","request_id":"abc"}}`,
			wantCode: errors.ErrCodeSchemaEmpty,
		},
		{
			name:     "plain text failure",
			status:   http.StatusBadGateway,
			body:     "upstream down",
			wantCode: errors.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "regression", map[string]interface{}{})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestClient_ScoreBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/batch", r.URL.Path)
		assert.Equal(t, "regression", r.URL.Query().Get("mode"))
		body, _ := io.ReadAll(r.Body)
		io.WriteString(w, strings.TrimSpace(string(body))+",pred_credit_limit\n")
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := NewClient(srv.URL, time.Second).ScoreBatch(context.Background(), "regression", strings.NewReader("Gender\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "Gender,pred_credit_limit\n", out.String())
}
