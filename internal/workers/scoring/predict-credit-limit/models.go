package predictcreditlimit

// Input is the job variable document.
type Input struct {
	Payload   map[string]interface{} `json:"payload"`
	RequestID string                 `json:"requestId,omitempty"`
}

// Output mirrors the /predict/regression response.
type Output struct {
	ModelName            string  `json:"model_name"`
	PredictedCreditLimit float64 `json:"predicted_credit_limit"`
	RuntimeMS            float64 `json:"runtime_ms"`
}
