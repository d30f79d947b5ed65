package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mkessler/fieldwork/internal/agent"
	"github.com/mkessler/fieldwork/internal/blackboard"
	"github.com/mkessler/fieldwork/internal/jobs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixedPlanner returns a canned plan or error.
type fixedPlanner struct {
	plan []string
	err  error
}

func (p fixedPlanner) PlanSubtasks(ctx context.Context, goal string, n int) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	plan := p.plan
	if len(plan) > n {
		plan = plan[:n]
	}
	return plan, nil
}

// oneFindingExecutor posts a finding, then declares done.
type oneFindingExecutor struct {
	agentID string
	stepped atomic.Bool
}

func (e *oneFindingExecutor) Step(ctx context.Context, auth agent.Authorizer) (agent.Outcome, error) {
	if e.stepped.CompareAndSwap(false, true) {
		return agent.Outcome{Kind: agent.OutcomeEntry, Type: blackboard.EntryFinding,
			Content: "finding from " + e.agentID}, nil
	}
	return agent.Outcome{Kind: agent.OutcomeDone, Summary: "done: " + e.agentID}, nil
}

// funcProvider builds executors via a closure.
type funcProvider func(jobID, agentID, subgoal string) agent.Executor

func (f funcProvider) NewAgent(jobID, agentID, subgoal string) agent.Executor {
	return f(jobID, agentID, subgoal)
}

// countingSynth records the number of entries it received and how many
// agents were done when synthesis began.
type countingSynth struct {
	registry    *jobs.Registry
	seenEntries int
	agentsDone  int
}

func (s *countingSynth) Synthesize(ctx context.Context, goal string, entries []blackboard.Entry) (string, jobs.ResultType, error) {
	s.seenEntries = len(entries)
	if s.registry != nil {
		for _, snap := range s.registry.List() {
			if snap.Goal == goal {
				s.agentsDone = snap.AgentsDone
			}
		}
	}
	return "combined report", jobs.ResultGeneral, nil
}

func waitTerminal(t *testing.T, registry *jobs.Registry, id string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := registry.Snapshot(id)
		if err != nil {
			t.Fatalf("job vanished: %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return jobs.Snapshot{}
}

func TestSwarmRunsAllAgentsThenSynthesizes(t *testing.T) {
	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	synth := &countingSynth{registry: registry}

	provider := funcProvider(func(jobID, agentID, subgoal string) agent.Executor {
		return &oneFindingExecutor{agentID: agentID}
	})

	o := NewOrchestrator(registry, board, fixedPlanner{plan: []string{"a", "b", "c"}}, provider, synth, nil)
	snap := o.Start(context.Background(), "broad question", 10, 10, 3)

	final := waitTerminal(t, registry, snap.ID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", final.Status, final.Error)
	}
	if final.AgentCount != 3 || final.AgentsDone != 3 {
		t.Errorf("agent accounting: %d/%d", final.AgentsDone, final.AgentCount)
	}
	if len(final.Plan) != 3 {
		t.Errorf("plan not recorded: %v", final.Plan)
	}
	// One finding and one done-summary per agent.
	if synth.seenEntries != 6 {
		t.Errorf("synthesizer saw %d entries, want 6", synth.seenEntries)
	}
	// Synthesis must not start before the last agent finished.
	if synth.agentsDone != 3 {
		t.Errorf("synthesis started with %d/3 agents done", synth.agentsDone)
	}
	if final.Result != "combined report" {
		t.Errorf("result not recorded: %q", final.Result)
	}
}

// gatedExecutor parks until release is closed, then declares done.
type gatedExecutor struct {
	agentID string
	release <-chan struct{}
}

func (e *gatedExecutor) Step(ctx context.Context, auth agent.Authorizer) (agent.Outcome, error) {
	select {
	case <-e.release:
		return agent.Outcome{Kind: agent.OutcomeDone, Summary: "done: " + e.agentID}, nil
	case <-ctx.Done():
		return agent.Outcome{}, ctx.Err()
	}
}

func TestSwarmSynthesisWaitsForSlowestAgent(t *testing.T) {
	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	synth := &countingSynth{registry: registry}
	release := make(chan struct{})

	// Agent 2 is held back; agents 1 and 3 finish immediately.
	provider := funcProvider(func(jobID, agentID, subgoal string) agent.Executor {
		if agentID == "agent-2" {
			return &gatedExecutor{agentID: agentID, release: release}
		}
		return &oneFindingExecutor{agentID: agentID}
	})

	o := NewOrchestrator(registry, board, fixedPlanner{plan: []string{"a", "b", "c"}}, provider, synth, nil)
	snap := o.Start(context.Background(), "straggler", 10, 10, 3)

	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := registry.Snapshot(snap.ID)
		if err != nil {
			t.Fatalf("job vanished: %v", err)
		}
		if s.AgentsDone == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fast agents never finished: %d done", s.AgentsDone)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// With agent 2 still parked the job must not have left running.
	if s, _ := registry.Snapshot(snap.ID); s.Status != jobs.StatusRunning {
		t.Fatalf("job advanced to %s before the last agent finished", s.Status)
	}

	close(release)
	final := waitTerminal(t, registry, snap.ID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", final.Status, final.Error)
	}
	if synth.agentsDone != 3 {
		t.Errorf("synthesis started with %d/3 agents done", synth.agentsDone)
	}
}

func TestSwarmPlanningFailure(t *testing.T) {
	registry := jobs.NewRegistry()
	o := NewOrchestrator(registry, blackboard.NewBoard(),
		fixedPlanner{err: errors.New("model refused")}, nil, nil, nil)

	snap := o.Start(context.Background(), "goal", 5, 5, 3)
	final := waitTerminal(t, registry, snap.ID)
	if final.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("error message missing")
	}
}

// failingExecutor errors on its first step.
type failingExecutor struct{}

func (failingExecutor) Step(ctx context.Context, auth agent.Authorizer) (agent.Outcome, error) {
	return agent.Outcome{}, errors.New("agent blew up")
}

func TestSwarmAllAgentsFailed(t *testing.T) {
	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	provider := funcProvider(func(jobID, agentID, subgoal string) agent.Executor {
		return failingExecutor{}
	})

	o := NewOrchestrator(registry, board, fixedPlanner{plan: []string{"a", "b", "c"}}, provider, &countingSynth{}, nil)
	snap := o.Start(context.Background(), "doomed swarm", 5, 5, 3)

	final := waitTerminal(t, registry, snap.ID)
	if final.Status != jobs.StatusError {
		t.Fatalf("status = %s, want error", final.Status)
	}
	if final.Error != "all agents failed" {
		t.Errorf("error = %q", final.Error)
	}
	// Each failure left evidence behind.
	if got := board.Count(snap.ID); got != 3 {
		t.Errorf("blackboard has %d entries, want 3", got)
	}
}

func TestSwarmPartialFailureStillCompletes(t *testing.T) {
	registry := jobs.NewRegistry()
	board := blackboard.NewBoard()
	synth := &countingSynth{}

	provider := funcProvider(func(jobID, agentID, subgoal string) agent.Executor {
		if agentID == "agent-2" {
			return failingExecutor{}
		}
		return &oneFindingExecutor{agentID: agentID}
	})

	o := NewOrchestrator(registry, board, fixedPlanner{plan: []string{"a", "b", "c"}}, provider, synth, nil)
	snap := o.Start(context.Background(), "mostly fine", 10, 10, 3)

	final := waitTerminal(t, registry, snap.ID)
	if final.Status != jobs.StatusDone {
		t.Fatalf("status = %s, want done (error: %s)", final.Status, final.Error)
	}
	if final.AgentsDone != 3 {
		t.Errorf("all agents should count as done, got %d", final.AgentsDone)
	}
}

func TestSwarmClampsAgentCount(t *testing.T) {
	registry := jobs.NewRegistry()
	var askedFor int
	planner := funcPlanner(func(ctx context.Context, goal string, n int) ([]string, error) {
		askedFor = n
		plan := make([]string, n)
		for i := range plan {
			plan[i] = fmt.Sprintf("task %d", i+1)
		}
		return plan, nil
	})
	provider := funcProvider(func(jobID, agentID, subgoal string) agent.Executor {
		return &oneFindingExecutor{agentID: agentID}
	})

	o := NewOrchestrator(registry, blackboard.NewBoard(), planner, provider, &countingSynth{}, nil)
	snap := o.Start(context.Background(), "huge", 5, 5, 100)

	final := waitTerminal(t, registry, snap.ID)
	if askedFor != maxAgents {
		t.Errorf("planner asked for %d sub-tasks, want %d", askedFor, maxAgents)
	}
	if final.AgentCount != maxAgents {
		t.Errorf("agent count = %d, want %d", final.AgentCount, maxAgents)
	}
}

type funcPlanner func(ctx context.Context, goal string, n int) ([]string, error)

func (f funcPlanner) PlanSubtasks(ctx context.Context, goal string, n int) ([]string, error) {
	return f(ctx, goal, n)
}
