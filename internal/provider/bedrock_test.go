package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/relay/internal/config"
	"github.com/knowledge-engine/relay/internal/provider"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bedrockagentruntime.RetrieveAndGenerateOutput), args.Error(1)
}

func newRequest(sessionID *string) *provider.GenerateRequest {
	return &provider.GenerateRequest{
		Query:           "What is the refund policy?",
		SessionID:       sessionID,
		KnowledgeBaseID: "KB123",
		ModelID:         "us.anthropic.claude-3-5-haiku-20241022-v1:0",
		PromptTemplate:  provider.PromptTemplate,
		TopK:            config.DefaultTopK,
	}
}

func TestBuildInput(t *testing.T) {
	in := provider.BuildInput(newRequest(aws.String("sess-1")))

	require.NotNil(t, in.Input)
	assert.Equal(t, "What is the refund policy?", aws.ToString(in.Input.Text))
	assert.Equal(t, "sess-1", aws.ToString(in.SessionId))

	rag := in.RetrieveAndGenerateConfiguration
	require.NotNil(t, rag)
	assert.Equal(t, types.RetrieveAndGenerateTypeKnowledgeBase, rag.Type)

	kb := rag.KnowledgeBaseConfiguration
	require.NotNil(t, kb)
	assert.Equal(t, "KB123", aws.ToString(kb.KnowledgeBaseId))
	assert.Equal(t, "us.anthropic.claude-3-5-haiku-20241022-v1:0", aws.ToString(kb.ModelArn))
	assert.Equal(t, int32(5), aws.ToInt32(kb.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults))
	assert.Equal(t, provider.PromptTemplate, aws.ToString(kb.GenerationConfiguration.PromptTemplate.TextPromptTemplate))
}

func TestBuildInputWithoutSession(t *testing.T) {
	in := provider.BuildInput(newRequest(nil))
	assert.Nil(t, in.SessionId)
}

func TestBuildInputPassesTopKThrough(t *testing.T) {
	req := newRequest(nil)
	req.TopK = 8

	in := provider.BuildInput(req)

	kb := in.RetrieveAndGenerateConfiguration.KnowledgeBaseConfiguration
	assert.Equal(t, int32(8), aws.ToInt32(kb.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults))
}

func TestBedrockGenerate(t *testing.T) {
	runtime := new(MockRuntime)
	runtime.On("RetrieveAndGenerate", mock.Anything, mock.MatchedBy(func(in *bedrockagentruntime.RetrieveAndGenerateInput) bool {
		return aws.ToString(in.Input.Text) == "What is the refund policy?"
	})).Return(&bedrockagentruntime.RetrieveAndGenerateOutput{
		Output:    &types.RetrieveAndGenerateOutput{Text: aws.String("Refunds within 30 days.")},
		SessionId: aws.String("sess-2"),
		Citations: []types.Citation{
			{
				GeneratedResponsePart: &types.GeneratedResponsePart{
					TextResponsePart: &types.TextResponsePart{
						Text: aws.String("Refunds within 30 days."),
						Span: &types.Span{Start: aws.Int32(0), End: aws.Int32(22)},
					},
				},
				RetrievedReferences: []types.RetrievedReference{
					{
						Content: &types.RetrievalResultContent{Text: aws.String("Customers may request a refund within 30 days.")},
						Location: &types.RetrievalResultLocation{
							Type:       types.RetrievalResultLocationTypeS3,
							S3Location: &types.RetrievalResultS3Location{Uri: aws.String("s3://docs/policy.pdf")},
						},
					},
					{
						Location: &types.RetrievalResultLocation{
							Type:        types.RetrievalResultLocationTypeWeb,
							WebLocation: &types.RetrievalResultWebLocation{Url: aws.String("https://example.com/refunds")},
						},
					},
				},
			},
		},
	}, nil)

	p := provider.NewBedrockProvider(runtime)
	assert.Equal(t, "bedrock", p.Name())

	res, err := p.Generate(context.Background(), newRequest(nil))
	require.NoError(t, err)

	assert.Equal(t, "Refunds within 30 days.", res.Answer)
	assert.Equal(t, "sess-2", aws.ToString(res.SessionID))
	require.Len(t, res.Citations, 1)

	c := res.Citations[0]
	require.NotNil(t, c.GeneratedResponsePart)
	assert.Equal(t, "Refunds within 30 days.", c.GeneratedResponsePart.TextResponsePart.Text)
	assert.Equal(t, &provider.Span{Start: 0, End: 22}, c.GeneratedResponsePart.TextResponsePart.Span)

	require.Len(t, c.RetrievedReferences, 2)
	assert.Equal(t, "Customers may request a refund within 30 days.", c.RetrievedReferences[0].Content.Text)
	assert.Equal(t, &provider.ReferenceLocation{Type: "S3", URI: "s3://docs/policy.pdf"}, c.RetrievedReferences[0].Location)
	assert.Nil(t, c.RetrievedReferences[1].Content)
	assert.Equal(t, "https://example.com/refunds", c.RetrievedReferences[1].Location.URI)

	runtime.AssertExpectations(t)
}

func TestBedrockGenerateNoCitations(t *testing.T) {
	runtime := new(MockRuntime)
	runtime.On("RetrieveAndGenerate", mock.Anything, mock.Anything).Return(&bedrockagentruntime.RetrieveAndGenerateOutput{
		Output:    &types.RetrieveAndGenerateOutput{Text: aws.String("A")},
		SessionId: aws.String("S"),
	}, nil)

	res, err := provider.NewBedrockProvider(runtime).Generate(context.Background(), newRequest(nil))
	require.NoError(t, err)
	assert.NotNil(t, res.Citations)
	assert.Empty(t, res.Citations)
}

func TestBedrockGenerateError(t *testing.T) {
	runtime := new(MockRuntime)
	runtime.On("RetrieveAndGenerate", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	res, err := provider.NewBedrockProvider(runtime).Generate(context.Background(), newRequest(nil))
	assert.Nil(t, res)
	assert.EqualError(t, err, "connection reset")
}

func TestBedrockGenerateEmptyOutput(t *testing.T) {
	runtime := new(MockRuntime)
	runtime.On("RetrieveAndGenerate", mock.Anything, mock.Anything).Return(&bedrockagentruntime.RetrieveAndGenerateOutput{
		SessionId: aws.String("S"),
	}, nil)

	_, err := provider.NewBedrockProvider(runtime).Generate(context.Background(), newRequest(nil))
	assert.ErrorIs(t, err, provider.ErrEmptyOutput)
}

func TestNewBedrockClient(t *testing.T) {
	client, err := provider.NewBedrockClient(context.Background(), config.AWSConfig{
		Region:          "us-east-1",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", client.Options().Region)
}
