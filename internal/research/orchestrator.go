// Package research runs single-agent research jobs: one executor works
// a goal until it finishes or the budget runs out, then the evidence is
// synthesized into the job result.
package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkessler/fieldwork/internal/agent"
	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/jobs"
)

// Orchestrator drives research jobs end to end.
type Orchestrator struct {
	registry *jobs.Registry
	board    *blackboard.Board
	provider agent.Provider
	synth    agent.Synthesizer
	logger   *slog.Logger
}

// NewOrchestrator creates the research orchestrator.
func NewOrchestrator(registry *jobs.Registry, board *blackboard.Board, provider agent.Provider, synth agent.Synthesizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		board:    board,
		provider: provider,
		synth:    synth,
		logger:   logger,
	}
}

// Start registers a research job and runs it in the background. The
// snapshot is returned immediately; callers poll for progress.
func (o *Orchestrator) Start(ctx context.Context, goal string, maxSearches, maxPages int) jobs.Snapshot {
	job := o.registry.CreateResearch("Research: "+truncateLabel(goal), goal, maxSearches, maxPages)
	go o.run(ctx, job)
	return job.Snapshot()
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job) {
	logger := o.logger.With("job_id", job.ID())

	if err := job.Transition(jobs.StatusRunning); err != nil {
		logger.Error("research transition failed", "error", err)
		return
	}
	job.SetProgress(job.BudgetProgress())

	exec := o.provider.NewAgent(job.ID(), "agent-1", job.Goal())

	for {
		if ctx.Err() != nil {
			job.Fail(jobs.StatusError, fmt.Sprintf("cancelled: %v", ctx.Err()))
			return
		}
		if job.Remaining().Exhausted() {
			logger.Info("research budget exhausted")
			break
		}

		out, err := exec.Step(ctx, job)
		if err != nil {
			logger.Error("research step failed", "error", err)
			job.Fail(jobs.StatusError, err.Error())
			return
		}

		switch out.Kind {
		case agent.OutcomeEntry:
			o.board.Append(job.ID(), "agent-1", out.Type, out.Content)
			job.SetProgress(job.BudgetProgress())
		case agent.OutcomeDone:
			if out.Summary != "" {
				o.board.Append(job.ID(), "agent-1", blackboard.EntryFinding, out.Summary)
			}
			logger.Info("research agent done")
			o.synthesize(ctx, job, logger)
			return
		case agent.OutcomeBudget:
			logger.Info("research stopped by budget")
			o.synthesize(ctx, job, logger)
			return
		}
	}

	o.synthesize(ctx, job, logger)
}

// synthesize closes out the job from whatever evidence exists.
func (o *Orchestrator) synthesize(ctx context.Context, job *jobs.Job, logger *slog.Logger) {
	if err := job.Transition(jobs.StatusSynthesizing); err != nil {
		logger.Error("research transition failed", "error", err)
		return
	}
	job.SetProgress("synthesizing report")

	report, resultType, err := o.synth.Synthesize(ctx, job.Goal(), o.board.Query(job.ID()))
	if err != nil {
		logger.Error("research synthesis failed", "error", err)
		job.Fail(jobs.StatusError, fmt.Sprintf("synthesis failed: %v", err))
		return
	}

	if err := job.Complete(report, resultType); err != nil {
		logger.Error("research completion failed", "error", err)
		return
	}
	logger.Info("research done", "result_type", resultType)
}

func truncateLabel(s string) string {
	if len(s) <= 60 {
		return s
	}
	return s[:60] + "..."
}
