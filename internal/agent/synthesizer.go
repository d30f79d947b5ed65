package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/llm"
)

// LLMSynthesizer produces the final report from blackboard evidence
// using the shared model.
type LLMSynthesizer struct {
	model *llm.Model
}

// NewLLMSynthesizer creates the production synthesizer.
func NewLLMSynthesizer(model *llm.Model) *LLMSynthesizer {
	return &LLMSynthesizer{model: model}
}

// Synthesize renders all entries as evidence, generates the report and
// classifies it. Classification failures fall back to general rather
// than failing the job.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, goal string, entries []blackboard.Entry) (string, jobs.ResultType, error) {
	report, err := s.model.Synthesize(ctx, goal, renderEvidence(entries))
	if err != nil {
		return "", jobs.ResultGeneral, fmt.Errorf("synthesize report: %w", err)
	}

	category, err := s.model.ClassifyResult(ctx, report)
	if err != nil {
		return report, jobs.ResultGeneral, nil
	}
	return report, jobs.ParseResultType(category), nil
}

func renderEvidence(entries []blackboard.Entry) string {
	if len(entries) == 0 {
		return "(no evidence was gathered)"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s/%s] %s\n", e.AgentID, e.Type, e.Content)
	}
	return b.String()
}
