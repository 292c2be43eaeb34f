package api

import (
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/pipeline"
	"credit-prediction/internal/store"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Ready  bool           `json:"ready"`
	Models []store.Status `json:"models"`
}

// PredictionRequest is the single-record envelope.
type PredictionRequest struct {
	Payload map[string]interface{} `json:"payload"`
}

type RegressionResponse struct {
	ModelName            string  `json:"model_name"`
	PredictedCreditLimit float64 `json:"predicted_credit_limit"`
	RuntimeMS            float64 `json:"runtime_ms"`
}

type ClassificationResponse struct {
	ModelName     string             `json:"model_name"`
	PredictedTier string             `json:"predicted_tier"`
	Proba         map[string]float64 `json:"proba"`
	RuntimeMS     float64            `json:"runtime_ms"`
}

type GlobalImportanceResponse struct {
	Kind     string                `json:"kind"`
	Features []pipeline.Importance `json:"features"`
}

type ErrorBody struct {
	Code      errors.ErrorCode `json:"code"`
	Operation string           `json:"operation"`
	Message   string           `json:"message"`
	Details   string           `json:"details,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
