package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSClientStandardQueue(t *testing.T) {
	api := &fakeSQS{}
	client := newSQSClient(api, "https://sqs.example/123/notify")

	require.NoError(t, client.Send(context.Background(), Message{Kind: "notification", ID: "env-1", GroupKey: "doc-1"}))

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, "notification", aws.ToString(in.MessageAttributes["kind"].StringValue))
	decoded, err := DecodeMessage([]byte(aws.ToString(in.MessageBody)))
	require.NoError(t, err)
	assert.Equal(t, "env-1", decoded.ID)
}

func TestSQSClientFIFOGroupsByKey(t *testing.T) {
	api := &fakeSQS{}
	client := newSQSClient(api, "https://sqs.example/123/notify.fifo")

	require.NoError(t, client.Send(context.Background(), Message{Kind: "notification", ID: "env-1", GroupKey: "doc-1"}))
	require.NoError(t, client.Send(context.Background(), Message{Kind: "notification", ID: "env-2"}))

	assert.Equal(t, "doc-1", aws.ToString(api.inputs[0].MessageGroupId))
	assert.Equal(t, "env-1", aws.ToString(api.inputs[0].MessageDeduplicationId))
	assert.Equal(t, "notification", aws.ToString(api.inputs[1].MessageGroupId))
}

func TestSQSClientWrapsSendError(t *testing.T) {
	api := &fakeSQS{err: errors.New("throttled")}
	err := newSQSClient(api, "https://sqs.example/q").Send(context.Background(), Message{Kind: "notification", ID: "x"})
	assert.ErrorContains(t, err, "throttled")

	err = newSQSClient(api, "https://sqs.example/q").Send(context.Background(), Message{ID: "x"})
	assert.ErrorIs(t, err, ErrMissingKind)
}
