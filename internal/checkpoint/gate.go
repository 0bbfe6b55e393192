// Package checkpoint implements the optional pre-execution approval gate.
// Plan generation and approval are external collaborators; the gate only
// orchestrates them and guarantees the approval wait is bounded.
package checkpoint

import (
	"context"
	"log"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

// Policy controls when the gate engages and how long it waits for approval
type Policy struct {
	Enabled bool
	// EveryN engages the gate every N iterations; 1 means every iteration,
	// 0 disables the interval check.
	EveryN int
	// ApprovalTimeout bounds the wait for an approval; expiry auto-approves.
	ApprovalTimeout time.Duration
}

// Decision is the gate's verdict for one story
type Decision struct {
	Proceed  bool
	Feedback string
}

// PlanGenerator produces a free-text execution plan for a story
type PlanGenerator interface {
	Plan(ctx context.Context, story *domain.Story, tool string) (string, error)
}

// Approver presents a plan for confirmation, human or automated
type Approver interface {
	Approve(ctx context.Context, story *domain.Story, plan string) (Decision, error)
}

// Gate decides whether the loop may execute a story
type Gate struct {
	policy   Policy
	plans    PlanGenerator
	approver Approver
	tool     string
}

// New creates a gate. plans and approver may be nil, in which case the gate
// always proceeds.
func New(policy Policy, plans PlanGenerator, approver Approver, tool string) *Gate {
	return &Gate{policy: policy, plans: plans, approver: approver, tool: tool}
}

// Decide runs the checkpoint for the given story and iteration. A disabled
// gate, an off-interval iteration, a plan failure or an approval timeout all
// resolve to proceed; the gate can delay the loop but never wedge it.
func (g *Gate) Decide(ctx context.Context, story *domain.Story, iteration int) Decision {
	if !g.policy.Enabled || g.plans == nil || g.approver == nil {
		return Decision{Proceed: true}
	}
	if g.policy.EveryN > 1 && iteration%g.policy.EveryN != 0 {
		return Decision{Proceed: true}
	}

	plan, err := g.plans.Plan(ctx, story, g.tool)
	if err != nil {
		log.Printf("warning: plan generation failed, proceeding without checkpoint: %v", err)
		return Decision{Proceed: true}
	}

	timeout := g.policy.ApprovalTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	approveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		decision Decision
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		d, err := g.approver.Approve(approveCtx, story, plan)
		ch <- outcome{decision: d, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			log.Printf("warning: approval failed, auto-approving: %v", out.err)
			return Decision{Proceed: true}
		}
		return out.decision
	case <-approveCtx.Done():
		log.Printf("checkpoint approval timed out after %s, auto-approving", timeout)
		return Decision{Proceed: true}
	}
}
