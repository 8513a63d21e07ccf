package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue submits retrain jobs to an SQS queue consumed by the training
// pipeline.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

// SQSQueueOption configures an SQSQueue.
type SQSQueueOption func(*SQSQueue)

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) SQSQueueOption {
	return func(q *SQSQueue) { q.client = c }
}

// NewSQSQueue creates a new SQS-backed retrain job queue.
func NewSQSQueue(queueURL string, opts ...SQSQueueOption) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("SQS queue URL required")
	}
	q := &SQSQueue{queueURL: queueURL}
	for _, o := range opts {
		o(q)
	}
	if q.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		q.client = sqs.NewFromConfig(cfg)
	}
	return q, nil
}

// Enqueue sends the job as JSON to the configured queue.
func (q *SQSQueue) Enqueue(ctx context.Context, job types.RetrainJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling retrain job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("sending retrain job to SQS: %w", err)
	}
	return nil
}
