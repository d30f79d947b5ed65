// Package jobs provides the registry and lifecycle state machine for
// background jobs.
package jobs

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status represents the lifecycle state of a background job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPlanning     Status = "planning"
	StatusRunning      Status = "running"
	StatusSynthesizing Status = "synthesizing"
	StatusDone         Status = "done"
	StatusError        Status = "error"
	StatusFailed       Status = "failed"
)

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusFailed
}

// Type identifies the kind of work a job performs.
type Type string

const (
	TypeResearch Type = "research"
	TypeCrawl    Type = "crawl"
	TypeSwarm    Type = "swarm"
)

// ResultType classifies terminal output for downstream presentation.
type ResultType string

const (
	ResultGeneral    ResultType = "general"
	ResultFlight     ResultType = "flight"
	ResultStock      ResultType = "stock"
	ResultCrypto     ResultType = "crypto"
	ResultNews       ResultType = "news"
	ResultComparison ResultType = "comparison"
)

// ParseResultType maps free-form classifier output onto the closed
// ResultType set, defaulting to general.
func ParseResultType(s string) ResultType {
	switch ResultType(strings.ToLower(strings.TrimSpace(s))) {
	case ResultFlight:
		return ResultFlight
	case ResultStock:
		return ResultStock
	case ResultCrypto:
		return ResultCrypto
	case ResultNews:
		return ResultNews
	case ResultComparison:
		return ResultComparison
	default:
		return ResultGeneral
	}
}

// transitions holds the allowed forward edges of the job state machine.
// Error and failed are additionally reachable from any non-terminal state.
var transitions = map[Status][]Status{
	StatusPending:      {StatusPlanning, StatusRunning},
	StatusPlanning:     {StatusRunning},
	StatusRunning:      {StatusSynthesizing, StatusDone},
	StatusSynthesizing: {StatusDone},
}

// Budget is the remaining allowance for expensive operations.
type Budget struct {
	Searches int
	Pages    int
}

// Exhausted reports whether no expensive action may proceed.
func (b Budget) Exhausted() bool {
	return b.Searches <= 0 && b.Pages <= 0
}

// Job is a mutable background job record. All access goes through
// methods; Snapshot returns a consistent copy for readers.
type Job struct {
	mu sync.RWMutex

	id        string
	seq       uint64
	typ       Type
	label     string
	goal      string
	status    Status
	progress  string
	startedAt time.Time
	doneAt    *time.Time
	errMsg    string

	result     string
	resultType ResultType

	searchesUsed int
	pagesLearned int
	maxSearches  int
	maxPages     int

	plan       []string
	agentCount int
	agentsDone int
}

// Snapshot is an immutable point-in-time copy of a job, shaped for the
// JSON status API.
type Snapshot struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Label       string     `json:"label"`
	Goal        string     `json:"goal,omitempty"`
	Status      Status     `json:"status"`
	Progress    string     `json:"progress,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
	ResultType  ResultType `json:"resultType,omitempty"`

	SearchesUsed      int `json:"searchesUsed,omitempty"`
	PagesLearned      int `json:"pagesLearned,omitempty"`
	BudgetMaxSearches int `json:"budgetMaxSearches,omitempty"`
	BudgetMaxPages    int `json:"budgetMaxPages,omitempty"`

	Plan       []string `json:"plan,omitempty"`
	AgentCount int      `json:"agentCount,omitempty"`
	AgentsDone int      `json:"agentsDone,omitempty"`
}

// ID returns the job's immutable identifier.
func (j *Job) ID() string { return j.id }

// Type returns the job's immutable type.
func (j *Job) Type() Type { return j.typ }

// Goal returns the goal text set at creation.
func (j *Job) Goal() string { return j.goal }

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Snapshot returns a thread-safe copy of the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var plan []string
	if len(j.plan) > 0 {
		plan = append(plan, j.plan...)
	}

	return Snapshot{
		ID:                j.id,
		Type:              j.typ,
		Label:             j.label,
		Goal:              j.goal,
		Status:            j.status,
		Progress:          j.progress,
		StartedAt:         j.startedAt,
		CompletedAt:       j.doneAt,
		Error:             j.errMsg,
		Result:            j.result,
		ResultType:        j.resultType,
		SearchesUsed:      j.searchesUsed,
		PagesLearned:      j.pagesLearned,
		BudgetMaxSearches: j.maxSearches,
		BudgetMaxPages:    j.maxPages,
		Plan:              plan,
		AgentCount:        j.agentCount,
		AgentsDone:        j.agentsDone,
	}
}

// Transition moves the job to the given state if the edge is allowed.
// Transitions are one-directional; terminal states are immutable.
func (j *Job) Transition(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to)
}

func (j *Job) transitionLocked(to Status) error {
	if j.status == to {
		return nil
	}
	if j.status.Terminal() {
		return fmt.Errorf("job %s: illegal transition %s -> %s", j.id, j.status, to)
	}
	for _, allowed := range transitions[j.status] {
		if allowed == to {
			j.status = to
			return nil
		}
	}
	return fmt.Errorf("job %s: illegal transition %s -> %s", j.id, j.status, to)
}

// Fail moves the job to the given terminal error state and records the
// message. The error field is written exactly once; failing an already
// terminal job is a no-op.
func (j *Job) Fail(to Status, msg string) {
	if to != StatusError && to != StatusFailed {
		to = StatusError
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = to
	j.errMsg = msg
	now := time.Now()
	j.doneAt = &now
}

// Complete records the terminal output and moves the job to done.
// Result and resultType are written exactly once.
func (j *Job) Complete(result string, resultType ResultType) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDone); err != nil {
		return err
	}
	j.result = result
	j.resultType = resultType
	now := time.Now()
	j.doneAt = &now
	return nil
}

// SetProgress overwrites the free-form progress counter.
func (j *Job) SetProgress(progress string) {
	j.mu.Lock()
	if !j.status.Terminal() {
		j.progress = progress
	}
	j.mu.Unlock()
}

// SetPlan records the planning-phase decomposition. The agent count is
// fixed at this point and immutable thereafter.
func (j *Job) SetPlan(plan []string) {
	j.mu.Lock()
	j.plan = append([]string(nil), plan...)
	j.agentCount = len(plan)
	j.mu.Unlock()
}

// AgentDone increments agentsDone exactly once per finished agent, up to
// the fixed agent count. Returns the new value.
func (j *Job) AgentDone() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.agentsDone < j.agentCount {
		j.agentsDone++
	}
	return j.agentsDone
}

// TryConsumeSearch atomically consumes one search budget unit. Returns
// false when the budget is already exhausted.
func (j *Job) TryConsumeSearch() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.searchesUsed >= j.maxSearches {
		return false
	}
	j.searchesUsed++
	return true
}

// TryConsumePage atomically consumes one page budget unit.
func (j *Job) TryConsumePage() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pagesLearned >= j.maxPages {
		return false
	}
	j.pagesLearned++
	return true
}

// Remaining returns the budget still available to the job.
func (j *Job) Remaining() Budget {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Budget{
		Searches: j.maxSearches - j.searchesUsed,
		Pages:    j.maxPages - j.pagesLearned,
	}
}

// BudgetProgress renders the budget counters for the progress field.
func (j *Job) BudgetProgress() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return fmt.Sprintf("searches %d/%d, pages %d/%d",
		j.searchesUsed, j.maxSearches, j.pagesLearned, j.maxPages)
}
