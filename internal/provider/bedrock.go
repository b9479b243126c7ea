package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/knowledge-engine/relay/internal/config"
)

// ErrEmptyOutput is returned when the service answers without an output block.
var ErrEmptyOutput = errors.New("bedrock returned no output")

// RetrieveAndGenerateAPI is the slice of the Bedrock Agent Runtime client we use
type RetrieveAndGenerateAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

type BedrockProvider struct {
	Client RetrieveAndGenerateAPI
}

func NewBedrockProvider(client RetrieveAndGenerateAPI) *BedrockProvider {
	return &BedrockProvider{Client: client}
}

// NewBedrockClient builds the shared Agent Runtime client. Static credentials
// are used when configured, otherwise the SDK default chain applies.
func NewBedrockClient(ctx context.Context, cfg config.AWSConfig) (*bedrockagentruntime.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bedrockagentruntime.NewFromConfig(awsCfg), nil
}

func (p *BedrockProvider) Name() string {
	return "bedrock"
}

func (p *BedrockProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	out, err := p.Client.RetrieveAndGenerate(ctx, BuildInput(req))
	if err != nil {
		return nil, err
	}
	if out == nil || out.Output == nil {
		return nil, ErrEmptyOutput
	}

	return &GenerateResult{
		Answer:    aws.ToString(out.Output.Text),
		SessionID: out.SessionId,
		Citations: convertCitations(out.Citations),
	}, nil
}

// BuildInput maps a GenerateRequest onto the SDK payload as is; defaults
// belong to the config layer.
func BuildInput(req *GenerateRequest) *bedrockagentruntime.RetrieveAndGenerateInput {
	return &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: aws.String(req.Query),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(req.KnowledgeBaseID),
				ModelArn:        aws.String(req.ModelID),
				RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(int32(req.TopK)),
					},
				},
				GenerationConfiguration: &types.GenerationConfiguration{
					PromptTemplate: &types.PromptTemplate{
						TextPromptTemplate: aws.String(req.PromptTemplate),
					},
				},
			},
		},
		SessionId: req.SessionID,
	}
}

func convertCitations(in []types.Citation) []Citation {
	citations := make([]Citation, 0, len(in))
	for _, c := range in {
		citation := Citation{
			RetrievedReferences: make([]RetrievedReference, 0, len(c.RetrievedReferences)),
		}

		if c.GeneratedResponsePart != nil && c.GeneratedResponsePart.TextResponsePart != nil {
			part := c.GeneratedResponsePart.TextResponsePart
			text := &TextResponsePart{Text: aws.ToString(part.Text)}
			if part.Span != nil {
				text.Span = &Span{
					Start: aws.ToInt32(part.Span.Start),
					End:   aws.ToInt32(part.Span.End),
				}
			}
			citation.GeneratedResponsePart = &GeneratedResponsePart{TextResponsePart: text}
		}

		for _, ref := range c.RetrievedReferences {
			var out RetrievedReference
			if ref.Content != nil {
				out.Content = &ReferenceContent{Text: aws.ToString(ref.Content.Text)}
			}
			if ref.Location != nil {
				out.Location = &ReferenceLocation{
					Type: string(ref.Location.Type),
					URI:  locationURI(ref.Location),
				}
			}
			citation.RetrievedReferences = append(citation.RetrievedReferences, out)
		}

		citations = append(citations, citation)
	}
	return citations
}

func locationURI(loc *types.RetrievalResultLocation) string {
	switch {
	case loc.S3Location != nil:
		return aws.ToString(loc.S3Location.Uri)
	case loc.WebLocation != nil:
		return aws.ToString(loc.WebLocation.Url)
	case loc.ConfluenceLocation != nil:
		return aws.ToString(loc.ConfluenceLocation.Url)
	case loc.SharePointLocation != nil:
		return aws.ToString(loc.SharePointLocation.Url)
	case loc.SalesforceLocation != nil:
		return aws.ToString(loc.SalesforceLocation.Url)
	case loc.KendraDocumentLocation != nil:
		return aws.ToString(loc.KendraDocumentLocation.Uri)
	case loc.CustomDocumentLocation != nil:
		return aws.ToString(loc.CustomDocumentLocation.Id)
	case loc.SqlLocation != nil:
		return aws.ToString(loc.SqlLocation.Query)
	}
	return ""
}
