package batch

import (
	"context"
	"time"

	"credit-prediction/internal/common/aws"
	"credit-prediction/internal/common/logger"
)

// SNSNotifier publishes batch summaries to an SNS topic. Publish failures are
// logged and never reach the caller.
type SNSNotifier struct {
	client  *aws.SNSClient
	timeout time.Duration
	logger  logger.Logger
}

func NewSNSNotifier(client *aws.SNSClient, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, timeout: 3 * time.Second, logger: log}
}

func (n *SNSNotifier) BatchScored(ctx context.Context, s *Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	id, err := n.client.PublishJSON(ctx, "batch scored: "+s.Kind, s)
	if err != nil {
		n.logger.Warn("Batch notification failed", map[string]interface{}{
			"mode":      s.Kind,
			"requestId": s.RequestID,
			"error":     err,
		})
		return
	}
	n.logger.Debug("Batch notification sent", map[string]interface{}{"messageId": id, "requestId": s.RequestID})
}
