package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// mockSNS captures Publish inputs.
type mockSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSinkPublishes(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789012:driftlock-alerts", WithSNSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testAlert()))

	require.Len(t, mock.inputs, 1)
	input := mock.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:driftlock-alerts", *input.TopicArn)
	assert.Equal(t, "[error] fraud-v3", *input.Subject)

	var got types.Alert
	require.NoError(t, json.Unmarshal([]byte(*input.Message), &got))
	assert.Equal(t, "aggregate drift detected", got.Message)
}

func TestSNSSinkPublishError(t *testing.T) {
	mock := &mockSNS{err: errors.New("throttled")}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789012:driftlock-alerts", WithSNSClient(mock))
	require.NoError(t, err)

	err = sink.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing to SNS")
}

func TestNewSNSSinkRequiresTopicARN(t *testing.T) {
	_, err := NewSNSSink("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN required")
}
