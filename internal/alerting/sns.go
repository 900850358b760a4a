package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the subset of the SNS API used by SNSChannel.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSChannel publishes notifications to an SNS topic.
type SNSChannel struct {
	api      SNSPublisher
	topicARN string
}

// NewSNSChannel creates an SNS channel for topicARN.
func NewSNSChannel(api SNSPublisher, topicARN string) *SNSChannel {
	return &SNSChannel{api: api, topicARN: topicARN}
}

// Name returns the channel name.
func (s *SNSChannel) Name() string {
	return "sns"
}

// Send publishes n with the record severity and rule as message attributes.
func (s *SNSChannel) Send(ctx context.Context, n *Notification) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(Truncate(n.Subject, SubjectMaxChars)),
		Message:  aws.String(n.Body),
	}

	if r := n.Record; r != nil {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"severity": stringAttribute(string(r.Severity)),
		}
		if r.RuleID != "" {
			input.MessageAttributes["rule_id"] = stringAttribute(r.RuleID)
		}
		if r.EventSource != "" {
			input.MessageAttributes["event_source"] = stringAttribute(r.EventSource)
		}
		if strings.HasSuffix(s.topicARN, ".fifo") {
			input.MessageGroupId = aws.String(r.Account)
			input.MessageDeduplicationId = aws.String(r.ID)
		}
	}

	if _, err := s.api.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// Close is a no-op; the SNS client holds no connections of its own.
func (s *SNSChannel) Close() error {
	return nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
