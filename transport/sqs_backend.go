package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsClient is the subset of the generated SQS client this package
// exercises, narrowed so tests can substitute a fake.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSBackend is a BackendPublisher (and consumer) backed by AWS SQS. One
// queue per topic name; queue URLs are resolved lazily and cached, since
// GetQueueUrl is a network round trip and topic names repeat constantly
// on the hot path.
type SQSBackend struct {
	client          sqsClient
	waitTimeSeconds int32
	visibility      int32

	mu       sync.Mutex
	urlCache map[string]string

	logger *slog.Logger
}

// SQSConfig configures the SQS backend.
type SQSConfig struct {
	Region            string
	Endpoint          string // non-empty to target LocalStack or a custom endpoint
	VisibilityTimeout int32
	WaitTimeSeconds   int32
	Logger            *slog.Logger
}

// NewSQSBackend loads AWS credentials the standard way (env vars, shared
// config, or pod/instance identity) and builds an SQS-backed transport.
func NewSQSBackend(ctx context.Context, cfg SQSConfig) (*SQSBackend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("transport: load aws config: %w", err)
	}

	var client *sqs.Client
	if cfg.Endpoint != "" {
		client = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	} else {
		client = sqs.NewFromConfig(awsCfg)
	}

	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 300
	}
	wait := cfg.WaitTimeSeconds
	if wait == 0 {
		wait = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SQSBackend{
		client:          client,
		waitTimeSeconds: wait,
		visibility:      visibility,
		urlCache:        make(map[string]string),
		logger:          logger,
	}, nil
}

func (b *SQSBackend) resolveQueueURL(ctx context.Context, topic string) (string, error) {
	b.mu.Lock()
	if url, ok := b.urlCache[topic]; ok {
		b.mu.Unlock()
		return url, nil
	}
	b.mu.Unlock()

	out, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(topic)})
	if err != nil {
		return "", fmt.Errorf("transport: resolve queue url for %s: %w", topic, err)
	}
	url := aws.ToString(out.QueueUrl)

	b.mu.Lock()
	b.urlCache[topic] = url
	b.mu.Unlock()
	return url, nil
}

// Publish implements BackendPublisher.
func (b *SQSBackend) Publish(ctx context.Context, topic string, body []byte) error {
	url, err := b.resolveQueueURL(ctx, topic)
	if err != nil {
		return err
	}
	_, err = b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		b.logger.Error("sqs send failed", "topic", topic, "error", err)
		return fmt.Errorf("transport: sqs send to %s: %w", topic, err)
	}
	return nil
}

// Consume long-polls topic until ctx is cancelled, invoking handle for
// each message body and deleting the message once handle returns nil.
// A non-nil error from handle leaves the message to reappear after its
// visibility timeout, matching the at-least-once delivery the component
// design expects consumers to tolerate.
func (b *SQSBackend) Consume(ctx context.Context, topic string, handle func([]byte) error) error {
	url, err := b.resolveQueueURL(ctx, topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     b.waitTimeSeconds,
			VisibilityTimeout:   b.visibility,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("sqs receive failed", "topic", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range resp.Messages {
			if err := handle([]byte(aws.ToString(msg.Body))); err != nil {
				b.logger.Warn("bus handler failed, leaving message for redelivery", "topic", topic, "error", err)
				continue
			}
			_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(url),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				b.logger.Error("sqs delete failed", "topic", topic, "error", err)
			}
		}
	}
}
