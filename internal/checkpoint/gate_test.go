package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ralphlabs/ralph/internal/domain"
)

type stubPlans struct {
	plan string
	err  error
}

func (s stubPlans) Plan(ctx context.Context, story *domain.Story, tool string) (string, error) {
	return s.plan, s.err
}

type stubApprover struct {
	decision Decision
	err      error
	delay    time.Duration
}

func (s stubApprover) Approve(ctx context.Context, story *domain.Story, plan string) (Decision, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
	return s.decision, s.err
}

func testStory() *domain.Story {
	return &domain.Story{Task: domain.Task{ID: "s1", Title: "Login"}}
}

func TestGate_DisabledProceeds(t *testing.T) {
	g := New(Policy{Enabled: false}, stubPlans{}, stubApprover{}, "claude")

	d := g.Decide(context.Background(), testStory(), 1)
	if !d.Proceed {
		t.Error("disabled gate should proceed")
	}
}

func TestGate_ApproverDecides(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
	}{
		{"approved", Decision{Proceed: true}},
		{"rejected with feedback", Decision{Proceed: false, Feedback: "split this story"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Policy{Enabled: true, ApprovalTimeout: time.Second},
				stubPlans{plan: "the plan"}, stubApprover{decision: tt.decision}, "claude")

			d := g.Decide(context.Background(), testStory(), 1)
			if d.Proceed != tt.decision.Proceed {
				t.Errorf("Proceed = %v, want %v", d.Proceed, tt.decision.Proceed)
			}
			if d.Feedback != tt.decision.Feedback {
				t.Errorf("Feedback = %q, want %q", d.Feedback, tt.decision.Feedback)
			}
		})
	}
}

func TestGate_TimeoutAutoApproves(t *testing.T) {
	g := New(Policy{Enabled: true, ApprovalTimeout: 50 * time.Millisecond},
		stubPlans{plan: "the plan"}, stubApprover{delay: time.Minute, decision: Decision{Proceed: false}}, "claude")

	start := time.Now()
	d := g.Decide(context.Background(), testStory(), 1)

	if !d.Proceed {
		t.Error("timeout must auto-approve, not hang or reject")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Decide took %s, approval wait is not bounded", elapsed)
	}
}

func TestGate_TimeoutCancelsApproverContext(t *testing.T) {
	released := make(chan struct{})
	approver := ctxBoundApprover{released: released}

	g := New(Policy{Enabled: true, ApprovalTimeout: 50 * time.Millisecond},
		stubPlans{plan: "the plan"}, approver, "claude")

	d := g.Decide(context.Background(), testStory(), 1)
	if !d.Proceed {
		t.Error("timeout must auto-approve")
	}

	// The approver's context must be cancelled so its wait unblocks
	// instead of leaking a goroutine per timed-out checkpoint.
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Error("approver was never released after the timeout")
	}
}

type ctxBoundApprover struct {
	released chan struct{}
}

func (a ctxBoundApprover) Approve(ctx context.Context, story *domain.Story, plan string) (Decision, error) {
	<-ctx.Done()
	close(a.released)
	return Decision{}, ctx.Err()
}

func TestGate_PlanFailureProceeds(t *testing.T) {
	g := New(Policy{Enabled: true, ApprovalTimeout: time.Second},
		stubPlans{err: errors.New("generator offline")},
		stubApprover{decision: Decision{Proceed: false}}, "claude")

	d := g.Decide(context.Background(), testStory(), 1)
	if !d.Proceed {
		t.Error("plan failure should not block the loop")
	}
}

func TestGate_IntervalSkipsOffIterations(t *testing.T) {
	g := New(Policy{Enabled: true, EveryN: 3, ApprovalTimeout: time.Second},
		stubPlans{plan: "the plan"}, stubApprover{decision: Decision{Proceed: false}}, "claude")

	// Iterations 1 and 2 skip the gate; iteration 3 engages it.
	if d := g.Decide(context.Background(), testStory(), 1); !d.Proceed {
		t.Error("iteration 1 should skip the gate")
	}
	if d := g.Decide(context.Background(), testStory(), 2); !d.Proceed {
		t.Error("iteration 2 should skip the gate")
	}
	if d := g.Decide(context.Background(), testStory(), 3); d.Proceed {
		t.Error("iteration 3 should engage the gate and be rejected")
	}
}
