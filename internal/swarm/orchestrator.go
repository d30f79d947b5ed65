// Package swarm runs multi-agent research jobs: a planner decomposes
// the goal into sub-tasks, one agent works each sub-task concurrently
// against the shared budget, and the combined evidence is synthesized.
package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mkessler/fieldwork/internal/agent"
	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/jobs"
)

const (
	minAgents = 1
	maxAgents = 8
)

// Planner decomposes a goal into at most n parallel sub-tasks.
type Planner interface {
	PlanSubtasks(ctx context.Context, goal string, n int) ([]string, error)
}

// Orchestrator drives swarm jobs end to end.
type Orchestrator struct {
	registry *jobs.Registry
	board    *blackboard.Board
	planner  Planner
	provider agent.Provider
	synth    agent.Synthesizer
	logger   *slog.Logger
}

// NewOrchestrator creates the swarm orchestrator.
func NewOrchestrator(registry *jobs.Registry, board *blackboard.Board, planner Planner, provider agent.Provider, synth agent.Synthesizer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		board:    board,
		planner:  planner,
		provider: provider,
		synth:    synth,
		logger:   logger,
	}
}

// Start registers a swarm job and runs it in the background. agentCount
// is an upper bound; the planner may produce fewer sub-tasks.
func (o *Orchestrator) Start(ctx context.Context, goal string, maxSearches, maxPages, agentCount int) jobs.Snapshot {
	if agentCount < minAgents {
		agentCount = minAgents
	}
	if agentCount > maxAgents {
		agentCount = maxAgents
	}

	job := o.registry.CreateSwarm("Swarm: "+truncateLabel(goal), goal, maxSearches, maxPages)
	go o.run(ctx, job, agentCount)
	return job.Snapshot()
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job, agentCount int) {
	logger := o.logger.With("job_id", job.ID())

	if err := job.Transition(jobs.StatusPlanning); err != nil {
		logger.Error("swarm transition failed", "error", err)
		return
	}
	job.SetProgress("planning sub-tasks")

	plan, err := o.planner.PlanSubtasks(ctx, job.Goal(), agentCount)
	if err != nil {
		logger.Error("swarm planning failed", "error", err)
		job.Fail(jobs.StatusFailed, fmt.Sprintf("planning failed: %v", err))
		return
	}
	job.SetPlan(plan)
	logger.Info("swarm planned", "agents", len(plan))

	if err := job.Transition(jobs.StatusRunning); err != nil {
		logger.Error("swarm transition failed", "error", err)
		return
	}
	job.SetProgress(fmt.Sprintf("0/%d agents done", len(plan)))

	// All agents run to completion before synthesis starts. An agent
	// failure becomes evidence; only all agents failing fails the job.
	var wg sync.WaitGroup
	var failures atomic.Int32

	for i, subgoal := range plan {
		wg.Add(1)
		agentID := fmt.Sprintf("agent-%d", i+1)
		go func(agentID, subgoal string) {
			defer wg.Done()
			defer func() {
				done := job.AgentDone()
				job.SetProgress(fmt.Sprintf("%d/%d agents done", done, len(plan)))
			}()

			if err := o.runAgent(ctx, job, agentID, subgoal); err != nil {
				failures.Add(1)
				logger.Warn("swarm agent failed", "agent_id", agentID, "error", err)
				o.board.Append(job.ID(), agentID, blackboard.EntryFinding,
					fmt.Sprintf("agent failed: %v", err))
			}
		}(agentID, subgoal)
	}
	wg.Wait()

	if int(failures.Load()) == len(plan) {
		job.Fail(jobs.StatusError, "all agents failed")
		logger.Error("swarm failed", "agents", len(plan))
		return
	}

	o.synthesize(ctx, job, logger)
}

// runAgent drives one executor until done, budget stop, or error.
func (o *Orchestrator) runAgent(ctx context.Context, job *jobs.Job, agentID, subgoal string) error {
	exec := o.provider.NewAgent(job.ID(), agentID, subgoal)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := exec.Step(ctx, job)
		if err != nil {
			return err
		}

		switch out.Kind {
		case agent.OutcomeEntry:
			o.board.Append(job.ID(), agentID, out.Type, out.Content)
		case agent.OutcomeDone:
			if out.Summary != "" {
				o.board.Append(job.ID(), agentID, blackboard.EntryFinding, out.Summary)
			}
			return nil
		case agent.OutcomeBudget:
			return nil
		}
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, job *jobs.Job, logger *slog.Logger) {
	if err := job.Transition(jobs.StatusSynthesizing); err != nil {
		logger.Error("swarm transition failed", "error", err)
		return
	}
	job.SetProgress("synthesizing report")

	report, resultType, err := o.synth.Synthesize(ctx, job.Goal(), o.board.Query(job.ID()))
	if err != nil {
		logger.Error("swarm synthesis failed", "error", err)
		job.Fail(jobs.StatusError, fmt.Sprintf("synthesis failed: %v", err))
		return
	}

	if err := job.Complete(report, resultType); err != nil {
		logger.Error("swarm completion failed", "error", err)
		return
	}
	logger.Info("swarm done", "result_type", resultType)
}

func truncateLabel(s string) string {
	if len(s) <= 60 {
		return s
	}
	return s[:60] + "..."
}
