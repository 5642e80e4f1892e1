package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"jobmate/autoapply-service/internal/model"
)

// Generator produces text for one prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GeneratorFactory builds a user's Generator from their AI configuration.
type GeneratorFactory func(ctx context.Context, cfg model.AIConfig) (Generator, error)

// LLMGenerator adapts a langchaingo model.
type LLMGenerator struct {
	model       llms.Model
	temperature float64
}

// NewLLMGenerator wraps m.
func NewLLMGenerator(m llms.Model, temperature float64) *LLMGenerator {
	return &LLMGenerator{model: m, temperature: temperature}
}

func (g *LLMGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g.model, system+"\n\n"+prompt,
		llms.WithTemperature(g.temperature))
}

// NewGoogleAIFactory returns a factory building Gemini clients with the
// user's own API key.
func NewGoogleAIFactory(defaultModel string, temperature float64) GeneratorFactory {
	return func(ctx context.Context, cfg model.AIConfig) (Generator, error) {
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(defaultModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return NewLLMGenerator(llm, temperature), nil
	}
}
