package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const snsPublishTimeout = 5 * time.Second

// SNSClient is the subset of *sns.Client used for publishing.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher forwards selected message types to an SNS topic. The type is
// sent as the "type" message attribute so subscribers can filter on it.
type SNSPublisher struct {
	client   SNSClient
	topicARN string
	types    map[string]bool
}

// NewSNSPublisher creates a publisher for topicARN. With no types given it
// forwards completions, failures and credit issuance; progress ticks stay
// local.
func NewSNSPublisher(client SNSClient, topicARN string, messageTypes ...string) *SNSPublisher {
	if len(messageTypes) == 0 {
		messageTypes = []string{MessageTypeCompleted, MessageTypeFailed, MessageTypeCreditsIssued}
	}
	p := &SNSPublisher{client: client, topicARN: topicARN, types: make(map[string]bool, len(messageTypes))}
	for _, t := range messageTypes {
		p.types[t] = true
	}
	return p
}

func (p *SNSPublisher) Publish(msg Message) error {
	if !p.types[msg.Type] {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), snsPublishTimeout)
	defer cancel()
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(msg.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to sns: %w", err)
	}
	return nil
}

// Fanout delivers each message to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
