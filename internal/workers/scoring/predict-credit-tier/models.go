package predictcredittier

type Input struct {
	Payload   map[string]interface{} `json:"payload"`
	RequestID string                 `json:"requestId,omitempty"`
}

// Output mirrors the /predict/classification response, plus the winning probability
// so gateways in the process model can route on it.
type Output struct {
	ModelName     string             `json:"model_name"`
	PredictedTier string             `json:"predicted_tier"`
	Proba         map[string]float64 `json:"proba"`
	Confidence    float64            `json:"confidence"`
	LowConfidence bool               `json:"low_confidence"`
	RuntimeMS     float64            `json:"runtime_ms"`
}
