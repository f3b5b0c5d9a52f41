package sqs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/veriscope/veriscope/internal/domain/jobs"
)

const waitTimeSeconds = 20

type Queue struct {
	client   *awssqs.Client
	queueURL string
}

func NewQueue(client *awssqs.Client, queueURL string) *Queue {
	return &Queue{client: client, queueURL: queueURL}
}

type envelope struct {
	VerificationJobID string `json:"verificationJobId"`
}

func (q *Queue) Enqueue(ctx context.Context, id jobs.JobID) error {
	body, err := json.Marshal(envelope{VerificationJobID: string(id)})
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending queue message: %w", err)
	}
	return nil
}

// Receive long-polls for one message. A nil message with nil error means
// the wait expired without a delivery.
func (q *Queue) Receive(ctx context.Context) (*jobs.Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitTimeSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receiving queue message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	var env envelope
	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &env); err != nil {
		return nil, fmt.Errorf("decoding queue message: %w", err)
	}
	return &jobs.Message{
		JobID:   jobs.JobID(env.VerificationJobID),
		Receipt: aws.ToString(m.ReceiptHandle),
	}, nil
}

func (q *Queue) Delete(ctx context.Context, m *jobs.Message) error {
	_, err := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(m.Receipt),
	})
	if err != nil {
		return fmt.Errorf("deleting queue message: %w", err)
	}
	return nil
}
