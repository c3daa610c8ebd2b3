package workflow

import (
	"context"
	"fmt"
	"time"

	"trip-agent/pkg/events"
)

// Node names a state of the workflow graph.
type Node string

const (
	NodeResumeRouter     Node = "resume_router"
	NodePlan             Node = "plan"
	NodeCheckAfterPlan   Node = "check_after_plan"
	NodeWaitUserPlan     Node = "wait_user_plan"
	NodeExecute          Node = "execute"
	NodeReplan           Node = "replan"
	NodeCheckAfterReplan Node = "check_after_replan"
	NodeWaitUserReplan   Node = "wait_user_replan"
	NodeObserve          Node = "observe"
	NodeEnd              Node = "end"
)

// terminal reports whether the engine hands control back after node.
func (n Node) terminal() bool {
	return n == NodeWaitUserPlan || n == NodeWaitUserReplan || n == NodeEnd
}

type nodeFunc func(ctx context.Context, s *State) Node

// Engine drives a State through the graph. One Run call processes one
// request: it starts at the resume router and returns at a wait node or at
// the end. State is saved after every transition.
type Engine struct {
	oc    *OrchestrationContext
	store Store
	nodes map[Node]nodeFunc
}

// NewEngine creates an engine. A nil store disables persistence.
func NewEngine(oc *OrchestrationContext, store Store) *Engine {
	e := &Engine{oc: oc, store: store}
	e.nodes = map[Node]nodeFunc{
		NodeResumeRouter:     e.resumeRouter,
		NodePlan:             e.plan,
		NodeCheckAfterPlan:   e.checkAfterPlan,
		NodeWaitUserPlan:     e.waitUser,
		NodeExecute:          e.execute,
		NodeReplan:           e.replan,
		NodeCheckAfterReplan: e.checkAfterReplan,
		NodeWaitUserReplan:   e.waitUser,
		NodeObserve:          e.observe,
		NodeEnd:              e.end,
	}
	return e
}

// Run advances s until it waits for the traveller or completes. Oracle and
// capability failures never surface here; the returned error is about
// persistence or cancellation only.
func (e *Engine) Run(ctx context.Context, s *State) (*State, error) {
	ctx = events.WithSessionID(ctx, s.SessionID)
	log := e.oc.Logger

	startType := events.WorkflowStarted
	if s.InterventionResponse != nil {
		startType = events.WorkflowResumed
	}
	s.Status = StatusRunning
	events.Emit(ctx, e.oc.Emitter, events.New(startType, s.Trip.Destination).With("iteration", s.Iteration))
	log.Infof("🚀 Session %s running (iteration %d)", s.SessionID, s.Iteration)

	node := NodeResumeRouter
	for {
		if err := ctx.Err(); err != nil {
			log.Warnf("⚠️ Session %s interrupted at %s: %v", s.SessionID, node, err)
			return s, err
		}

		s.CurrentNode = node
		e.oc.Metrics.NodeRun(string(node))
		events.Emit(ctx, e.oc.Emitter, events.New(events.NodeStarted, string(node)).With("node", string(node)))
		next := e.nodes[node](ctx, s)

		if node.terminal() {
			if err := e.save(ctx, s); err != nil {
				return s, err
			}
			if node == NodeEnd {
				events.Emit(ctx, e.oc.Emitter, events.New(events.WorkflowCompleted, "workflow completed").With("iteration", s.Iteration))
			} else {
				events.Emit(ctx, e.oc.Emitter, events.New(events.WorkflowPaused, "waiting for traveller").
					With("stage", string(s.InterventionStage)).With("question", s.question()))
			}
			return s, nil
		}

		events.Emit(ctx, e.oc.Emitter, events.New(events.NodeCompleted, string(node)).With("node", string(node)).With("next", string(next)))
		log.Debugf("➡️ %s → %s", node, next)
		s.CurrentNode = next
		if err := e.save(ctx, s); err != nil {
			return s, err
		}
		node = next
	}
}

func (e *Engine) save(ctx context.Context, s *State) error {
	if e.store == nil {
		return nil
	}
	s.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, s); err != nil {
		e.oc.Logger.Errorf("❌ Failed to save session %s at %s: %v", s.SessionID, s.CurrentNode, err)
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	return nil
}

func (e *Engine) anomaly(ctx context.Context, s *State, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.oc.Logger.Warnf("⚠️ State anomaly in session %s: %s", s.SessionID, msg)
	events.Emit(ctx, e.oc.Emitter, events.New(events.StateAnomaly, msg).With("node", string(s.CurrentNode)))
}
