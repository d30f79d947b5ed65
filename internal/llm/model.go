// Package llm wraps langchaingo models for the planning, decision,
// synthesis and classification prompts the orchestrators depend on.
package llm

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mkessler/fieldwork/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
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

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
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
		return "", classifyErr(fmt.Errorf("generate: %w", err))
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
		return "", classifyErr(fmt.Errorf("generate with system: %w", err))
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

// PlanSubtasks decomposes a research goal into up to n independent
// sub-tasks, one per agent.
func (m *Model) PlanSubtasks(ctx context.Context, goal string, n int) ([]string, error) {
	systemPrompt := fmt.Sprintf(`You are a research planner. Decompose the user's goal into at most %d independent sub-tasks
that can be researched in parallel by separate agents.

Output format (one per line, nothing else):
TASK|<short sub-task description>`, n)

	userPrompt := fmt.Sprintf(`Goal:
%s

Sub-tasks:`, goal)

	raw, err := m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	tasks := ParsePlan(raw)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("planner produced no tasks")
	}
	if len(tasks) > n {
		tasks = tasks[:n]
	}
	return tasks, nil
}

// DecideNextAction asks the model for the next unit of work for a
// sub-goal, given the notes gathered so far and the remaining budget.
// The answer is a single action line parsed by the agent executor.
func (m *Model) DecideNextAction(ctx context.Context, subgoal, notes string, remainingSearches, remainingPages int) (string, error) {
	systemPrompt := `You are a research agent. Decide the single next action toward the sub-goal.

Output EXACTLY one line in one of these forms:
SEARCH|<web search query>
LEARN|<url of a page to read and store>
RUN|<python or node>|<short code snippet to compute something>
QUESTION|<open question worth recording>
ANSWER|<answer to a previously recorded question>
DONE|<one-paragraph summary of what was established>

Rules:
- Use SEARCH only if searches remain, LEARN only if pages remain.
- Prefer DONE once the sub-goal is sufficiently covered.`

	userPrompt := fmt.Sprintf(`Sub-goal:
%s

Notes so far:
%s

Budget remaining: %d searches, %d pages.

Next action:`, subgoal, notes, remainingSearches, remainingPages)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// Synthesize produces the final report from all blackboard evidence.
func (m *Model) Synthesize(ctx context.Context, goal, evidence string) (string, error) {
	systemPrompt := `You are a research synthesis assistant. Write a unified report answering the goal,
based ONLY on the provided evidence. If evidence is thin, say what is missing.
Be concise and cite specific findings where relevant.`

	userPrompt := fmt.Sprintf(`Goal:
%s

Evidence:
%s

Report:`, goal, evidence)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// ClassifyResult tags a report with one presentation category.
func (m *Model) ClassifyResult(ctx context.Context, report string) (string, error) {
	systemPrompt := `Classify the report into exactly one category.
Answer with a single word from: general, flight, stock, crypto, news, comparison.`

	userPrompt := fmt.Sprintf(`Report:
%s

Category:`, report)

	return m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
}

// ParsePlan extracts TASK| lines from planner output.
func ParsePlan(raw string) []string {
	var tasks []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, "|", 2)
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "TASK") {
			if task := strings.TrimSpace(parts[1]); task != "" {
				tasks = append(tasks, task)
			}
		}
	}
	return tasks
}
