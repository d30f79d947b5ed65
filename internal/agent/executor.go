// Package agent contains the research executor: the unit of work that
// orchestrators run one or more of, in parallel, against a shared
// blackboard and a shared job budget.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/fetch"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/mkessler/fieldwork/internal/llm"
	"github.com/mkessler/fieldwork/internal/sandbox"
	"github.com/mkessler/fieldwork/internal/store"
)

// Authorizer grants or denies expensive actions against a job-scoped
// budget. Consumption is atomic; a false return means the action must
// not be performed.
type Authorizer interface {
	TryConsumeSearch() bool
	TryConsumePage() bool
	Remaining() jobs.Budget
}

// OutcomeKind tells the orchestrator what one executor step produced.
type OutcomeKind int

const (
	// OutcomeEntry carries a blackboard entry to append.
	OutcomeEntry OutcomeKind = iota
	// OutcomeDone means the executor finished its sub-goal.
	OutcomeDone
	// OutcomeBudget means the executor stopped because the budget
	// denied its next action.
	OutcomeBudget
)

// Outcome is the result of one executor step.
type Outcome struct {
	Kind    OutcomeKind
	Type    blackboard.EntryType
	Content string
	Summary string
}

// Executor performs one unit of work at a time toward a sub-goal.
// Orchestrators call Step in a loop until it reports done, the budget
// runs out, or an error surfaces.
type Executor interface {
	Step(ctx context.Context, auth Authorizer) (Outcome, error)
}

// Provider constructs executors. Orchestrators depend on this so tests
// can substitute scripted executors for LLM-backed ones.
type Provider interface {
	NewAgent(jobID, agentID, subgoal string) Executor
}

// Synthesizer turns gathered blackboard evidence into a final report
// and its presentation category.
type Synthesizer interface {
	Synthesize(ctx context.Context, goal string, entries []blackboard.Entry) (report string, resultType jobs.ResultType, err error)
}

// Tools are the host capabilities an LLM executor may call. Searcher
// and Sandbox are optional; a nil capability makes the corresponding
// action unavailable.
type Tools struct {
	Searcher fetch.Searcher
	Fetcher  *fetch.Fetcher
	Store    store.Store
	Sandbox  *sandbox.Client
}

// LLMProvider builds LLM-backed executors sharing one model and tool set.
type LLMProvider struct {
	model  *llm.Model
	tools  Tools
	logger *slog.Logger
}

// NewLLMProvider creates the production executor provider.
func NewLLMProvider(model *llm.Model, tools Tools, logger *slog.Logger) *LLMProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMProvider{model: model, tools: tools, logger: logger}
}

// NewAgent creates one executor instance. Each instance keeps its own
// note log; shared state lives on the blackboard and the budget.
func (p *LLMProvider) NewAgent(jobID, agentID, subgoal string) Executor {
	return &llmExecutor{
		model:   p.model,
		tools:   p.tools,
		logger:  p.logger.With("job_id", jobID, "agent_id", agentID),
		subgoal: subgoal,
	}
}

// actionDecider is the model capability the executor needs to pick its
// next move. *llm.Model satisfies it.
type actionDecider interface {
	DecideNextAction(ctx context.Context, subgoal, notes string, remainingSearches, remainingPages int) (string, error)
}

// llmExecutor drives one agent loop: ask the model for the next action,
// authorize it against the budget, perform it, note the result.
type llmExecutor struct {
	model   actionDecider
	tools   Tools
	logger  *slog.Logger
	subgoal string
	notes   []string
	steps   int

	decideFailures int
}

// maxSteps bounds a runaway agent that never answers DONE.
const maxSteps = 24

// maxDecideFailures bounds consecutive transient model errors before
// the agent gives up. Fatal account-level errors abort immediately.
const maxDecideFailures = 3

func (e *llmExecutor) Step(ctx context.Context, auth Authorizer) (Outcome, error) {
	e.steps++
	if e.steps > maxSteps {
		return Outcome{Kind: OutcomeDone, Summary: e.fallbackSummary()}, nil
	}

	rem := auth.Remaining()
	raw, err := e.model.DecideNextAction(ctx, e.subgoal, strings.Join(e.notes, "\n"), rem.Searches, rem.Pages)
	if err != nil {
		if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("decide next action: %w", err)
		}
		e.decideFailures++
		if e.decideFailures >= maxDecideFailures {
			return Outcome{}, fmt.Errorf("decide next action failed %d times: %w", e.decideFailures, err)
		}
		e.logger.Warn("model call failed, retrying next step", "error", err)
		e.note(fmt.Sprintf("model call failed: %v", err))
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: fmt.Sprintf("model call failed, will retry: %v", err)}, nil
	}
	e.decideFailures = 0

	action, arg := parseAction(raw)
	e.logger.Debug("agent action", "action", action, "arg", truncate(arg, 120))

	switch action {
	case "SEARCH":
		return e.doSearch(ctx, auth, arg)
	case "LEARN":
		return e.doLearn(ctx, auth, arg)
	case "RUN":
		return e.doRun(ctx, arg)
	case "QUESTION":
		e.note("asked: " + arg)
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryQuestion, Content: arg}, nil
	case "ANSWER":
		e.note("answered: " + arg)
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryAnswer, Content: arg}, nil
	case "DONE":
		if arg == "" {
			arg = e.fallbackSummary()
		}
		return Outcome{Kind: OutcomeDone, Summary: arg}, nil
	default:
		// Unparseable output is noted so the model sees its mistake
		// on the next step instead of looping on it.
		e.note("produced an invalid action, expected SEARCH/LEARN/RUN/QUESTION/ANSWER/DONE")
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: "agent emitted an unparseable action and was nudged back on track"}, nil
	}
}

func (e *llmExecutor) doSearch(ctx context.Context, auth Authorizer, query string) (Outcome, error) {
	if e.tools.Searcher == nil {
		e.note("search unavailable on this host")
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: "search capability not configured"}, nil
	}
	if !auth.TryConsumeSearch() {
		return Outcome{Kind: OutcomeBudget}, nil
	}

	hits, err := e.tools.Searcher.Search(ctx, query)
	if err != nil {
		// A transient tool failure is evidence, not a job failure.
		e.note(fmt.Sprintf("search %q failed: %v", query, err))
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: fmt.Sprintf("search %q failed: %v", query, err)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "search %q returned %d results", query, len(hits))
	for i, h := range hits {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "\n- %s (%s) %s", h.Title, h.URL, truncate(h.Snippet, 160))
	}
	content := b.String()
	e.note(content)
	return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding, Content: content}, nil
}

func (e *llmExecutor) doLearn(ctx context.Context, auth Authorizer, pageURL string) (Outcome, error) {
	if !auth.TryConsumePage() {
		return Outcome{Kind: OutcomeBudget}, nil
	}

	page, err := e.tools.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		e.note(fmt.Sprintf("fetch %s failed: %v", pageURL, err))
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: fmt.Sprintf("could not read %s: %v", pageURL, err)}, nil
	}

	if e.tools.Store != nil {
		if _, err := e.tools.Store.Learn(ctx, page.URL, page.Title, page.Content, false); err != nil {
			e.logger.Warn("store learn failed", "url", page.URL, "error", err)
		}
	}

	content := fmt.Sprintf("read %s (%s): %s", page.URL, page.Title, truncate(page.Content, 800))
	e.note(content)
	return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding, Content: content}, nil
}

func (e *llmExecutor) doRun(ctx context.Context, arg string) (Outcome, error) {
	if e.tools.Sandbox == nil {
		e.note("sandbox unavailable on this host")
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: "code execution not configured"}, nil
	}

	lang, code, ok := strings.Cut(arg, "|")
	if !ok || strings.TrimSpace(code) == "" {
		e.note("RUN action missing language or code")
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: "malformed code execution request"}, nil
	}

	res, err := e.tools.Sandbox.Run(ctx, sandbox.RunRequest{
		Language: strings.TrimSpace(strings.ToLower(lang)),
		Code:     code,
	})
	if err != nil {
		e.note(fmt.Sprintf("sandbox run failed: %v", err))
		return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryFinding,
			Content: fmt.Sprintf("code execution failed: %v", err)}, nil
	}

	content := fmt.Sprintf("executed %s code (exit %d):\n%s", lang, res.ExitCode, truncate(res.Stdout, 800))
	if res.ExitCode != 0 {
		content += "\nstderr: " + truncate(res.Stderr, 400)
	}
	e.note(content)
	return Outcome{Kind: OutcomeEntry, Type: blackboard.EntryArtifact, Content: content}, nil
}

func (e *llmExecutor) note(s string) {
	e.notes = append(e.notes, s)
}

func (e *llmExecutor) fallbackSummary() string {
	if len(e.notes) == 0 {
		return "no findings gathered for: " + e.subgoal
	}
	return "gathered notes:\n" + truncate(strings.Join(e.notes, "\n"), 1200)
}

// parseAction splits one model output line into verb and argument. Only
// the first non-empty line counts.
func parseAction(raw string) (verb, arg string) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, a, _ := strings.Cut(line, "|")
		return strings.ToUpper(strings.TrimSpace(v)), strings.TrimSpace(a)
	}
	return "", ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
