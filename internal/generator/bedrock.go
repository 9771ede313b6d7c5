package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockGenerator calls a Bedrock-hosted model, used for pro's full regens
// (§6.3 routing) where provider-call concurrency pools are separated from
// the direct Anthropic API pool.
type BedrockGenerator struct {
	client *bedrockruntime.Client
}

// NewBedrockGenerator builds a Generator backed by AWS Bedrock, loading
// credentials from the default AWS config chain scoped to region.
func NewBedrockGenerator(ctx context.Context, region string) (*BedrockGenerator, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &BedrockGenerator{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

type bedrockClaudeBody struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	System           string                 `json:"system"`
	Messages         []bedrockClaudeMessage `json:"messages"`
}

type bedrockClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockClaudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Generator.
func (g *BedrockGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	body, err := json.Marshal(bedrockClaudeBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           variantGenerationSystemPrompt(req),
		Messages: []bedrockClaudeMessage{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling bedrock request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Result{}, classifyBedrockError(err)
	}

	var resp bedrockClaudeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Result{}, &GenerateError{Code: ErrCodeValidation, Message: fmt.Sprintf("decoding bedrock response: %v", err)}
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	variants, err := parseVariants(text, req.VariantCount)
	if err != nil {
		return Result{}, &GenerateError{Code: ErrCodeValidation, Message: fmt.Sprintf("parsing model output: %v", err)}
	}

	return Result{
		Variants: variants,
		Model:    modelID,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func classifyBedrockError(err error) error {
	var throttling *types.ThrottlingException
	if errors.As(err, &throttling) {
		return &GenerateError{Code: ErrCodeRateLimited, Message: throttling.Error()}
	}
	var serviceUnavailable *types.ServiceUnavailableException
	if errors.As(err, &serviceUnavailable) {
		return &GenerateError{Code: ErrCodeServerError, Message: serviceUnavailable.Error()}
	}
	var modelTimeout *types.ModelTimeoutException
	if errors.As(err, &modelTimeout) {
		return &GenerateError{Code: ErrCodeServerError, Message: modelTimeout.Error()}
	}
	var validation *types.ValidationException
	if errors.As(err, &validation) {
		return &GenerateError{Code: ErrCodeValidation, Message: validation.Error()}
	}
	return &GenerateError{Code: ErrCodeNetwork, Message: err.Error()}
}
