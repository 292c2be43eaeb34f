package predictcredittier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/logger"
	"credit-prediction/internal/common/metrics"
	"credit-prediction/internal/common/requestid"
	"credit-prediction/internal/inference"
)

const TaskType = "predict-credit-tier"

type Predictor interface {
	Predict(ctx context.Context, kind string, payload map[string]interface{}) (*inference.Result, error)
}

type Handler struct {
	config       *Config
	engine       Predictor
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

func NewHandler(config *Config, engine Predictor, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       engine,
		logger:       log,
		errorHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return h.fail(ctx, client, job, errors.NewInvalidPayloadError(TaskType, fmt.Sprintf("variables: %v", err)))
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}

	if output.LowConfidence {
		h.logger.Warn("low confidence tier", map[string]interface{}{
			"jobKey":     job.Key,
			"tier":       output.PredictedTier,
			"confidence": output.Confidence,
		})
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Payload == nil {
		return nil, errors.NewInvalidPayloadError(TaskType, "payload: required")
	}
	if input.RequestID != "" {
		ctx = requestid.NewContext(ctx, input.RequestID)
	}

	res, err := h.engine.Predict(ctx, config.KindClassification, input.Payload)
	if err != nil {
		return nil, err
	}

	confidence := res.Probabilities[res.Label]
	return &Output{
		ModelName:     res.ModelName,
		PredictedTier: res.Label,
		Proba:         res.Probabilities,
		Confidence:    confidence,
		LowConfidence: h.config.MinConfidence > 0 && confidence < h.config.MinConfidence,
		RuntimeMS:     res.RuntimeMS,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, TaskType, err)
	return err
}
