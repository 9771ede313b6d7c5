package generator

import "context"

// MockGenerator is a deterministic stand-in for tests and local development
// without provider credentials. It never calls out to a network.
type MockGenerator struct {
	// NextErr, if set, is returned (and cleared) on the next call.
	NextErr error
}

// Generate implements Generator with deterministic, content-free variants.
func (g *MockGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if g.NextErr != nil {
		err := g.NextErr
		g.NextErr = nil
		return Result{}, err
	}

	n := req.VariantCount
	if n <= 0 {
		n = 1
	}
	variants := make([]GeneratedVariant, n)
	for i := range variants {
		variants[i] = GeneratedVariant{
			Text:     "mock variant content for " + req.Platform,
			Hashtags: []string{"#mock"},
			Metadata: VariantMetadata{Hook: "hook", Benefit: "benefit", CTA: "cta"},
		}
	}
	return Result{
		Variants: variants,
		Model:    "mock-model",
		Usage:    Usage{InputTokens: int64(len(req.Prompt)), OutputTokens: int64(n * 50)},
	}, nil
}
