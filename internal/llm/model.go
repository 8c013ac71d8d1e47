// Package llm wraps langchaingo text generation behind the handful of
// prompts the loop actually uses.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/pulse/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	return response, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Summarize compresses a memory into at most two sentences. Used by the
// background worker for episode summaries and by the scheduler when it
// writes the narrative memory of a cycle.
func (m *Model) Summarize(ctx context.Context, text string) (string, error) {
	systemPrompt := `You compress memories for later recall. Summarize the given text in at most two sentences.
Keep concrete names, dates and outcomes; drop filler. Respond with the summary only.`

	userPrompt := fmt.Sprintf(`Text:
%s

Summary:`, text)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// ExtractConcepts extracts entities and relations from episode text.
func (m *Model) ExtractConcepts(ctx context.Context, text string, existingEntities []string) (string, error) {
	entitiesStr := ""
	if len(existingEntities) > 0 {
		entitiesStr = fmt.Sprintf("\nKnown entities that may be referenced:\n%s", strings.Join(existingEntities, ", "))
	}

	systemPrompt := `You are a Knowledge Graph Specialist. Extract entities and relations from the given text.

Entity types: person, place, project, concept, preference, tool, event

Output format (one per line):
ENTITY|name|type|description
RELATION|source|target|relation_type|description

Guidelines:
- Extract all meaningful entities with brief descriptions
- Identify relationships between entities
- Use lowercase entity names with hyphens (e.g., "jane-doe", "morning-routine")
- For relation types use: works_on, owns, depends_on, references, mentions, relates_to`

	userPrompt := fmt.Sprintf(`Text:
%s
%s

Extracted entities and relations:`, text, entitiesStr)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}
