package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator calls the Anthropic Messages API directly, used for
// basic/standard plans and pro's interactive (non-full-regen) calls (§6.3).
type AnthropicGenerator struct {
	client anthropic.Client
}

// NewAnthropicGenerator builds a Generator backed by the Anthropic API.
func NewAnthropicGenerator(apiKey string) *AnthropicGenerator {
	return &AnthropicGenerator{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	route := req.Model
	if route == "" {
		route = anthropicModelFor(req)
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(route),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: variantGenerationSystemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return Result{}, classifyAnthropicError(err)
	}

	var text string
	for _, block := range msg.Content {
		if tb := block.AsAny(); tb != nil {
			if t, ok := tb.(anthropic.TextBlock); ok {
				text += t.Text
			}
		}
	}

	variants, err := parseVariants(text, req.VariantCount)
	if err != nil {
		return Result{}, &GenerateError{Code: ErrCodeValidation, Message: fmt.Sprintf("parsing model output: %v", err)}
	}

	return Result{
		Variants: variants,
		Model:    string(msg.Model),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// anthropicModelFor is the fallback used only when the caller leaves
// req.Model unset; callers wired through the admission/worker pipeline
// should always set it from router.RouteModel instead.
func anthropicModelFor(req Request) string {
	switch {
	case req.IsRegen && req.RegenType == "full":
		return "claude-opus-4-5"
	default:
		return "claude-sonnet-4-5"
	}
}

func variantGenerationSystemPrompt(req Request) string {
	return fmt.Sprintf(
		"You write short-form video content for %s. Produce exactly %d variant(s) as a JSON array; "+
			"each element has {\"text\",\"hashtags\":[...],\"metadata\":{\"hook\",\"benefit\",\"cta\"}}. "+
			"Respond with only the JSON array, no surrounding prose.",
		req.Platform, req.VariantCount,
	)
}

func parseVariants(text string, expected int) ([]GeneratedVariant, error) {
	var variants []GeneratedVariant
	if err := json.Unmarshal([]byte(text), &variants); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, errors.New("model returned zero variants")
	}
	if expected > 0 && len(variants) != expected {
		return nil, fmt.Errorf("expected %d variants, got %d", expected, len(variants))
	}
	return variants, nil
}

// classifyAnthropicError maps an SDK error to the worker's transient/
// permanent taxonomy (§6.3).
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &GenerateError{Code: ErrCodeRateLimited, Message: apiErr.Error()}
		case apiErr.StatusCode >= 500:
			return &GenerateError{Code: ErrCodeServerError, Message: apiErr.Error()}
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 422:
			return &GenerateError{Code: ErrCodeValidation, Message: apiErr.Error()}
		default:
			return &GenerateError{Code: ErrCodeServerError, Message: apiErr.Error()}
		}
	}
	return &GenerateError{Code: ErrCodeNetwork, Message: err.Error()}
}
