package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opsgate/sapguard/internal/domain/capability"
	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/trace"
	"github.com/opsgate/sapguard/internal/logger"
	"github.com/opsgate/sapguard/internal/port/broadcast"
	"github.com/opsgate/sapguard/internal/port/database"
	"github.com/opsgate/sapguard/internal/port/decision"
)

// DefaultFallbackMessage is returned when the iteration budget runs out
// before the decision service produces terminal content.
const DefaultFallbackMessage = "I wasn't able to complete this request within the allowed number of steps. " +
	"Please try rephrasing or narrowing your request."

// OrchestratorOptions configures the routing loop.
type OrchestratorOptions struct {
	Name              string
	MaxIterations     int
	InvocationTimeout time.Duration
	FallbackMessage   string
}

// TurnResult is the orchestrator's output contract for one conversation turn.
type TurnResult struct {
	Messages   []conversation.Message `json:"messages"`
	AgentChain []string               `json:"agent_chain"`
	Trace      *trace.Trace           `json:"reasoning_trace"`
	Iterations int                    `json:"iterations"`
}

// Orchestrator drives the routing state machine: it repeatedly asks the
// decision service what to do, dispatches to the chosen capability, folds
// the result back into the conversation, and stops on terminal content or
// when the iteration budget is exhausted.
type Orchestrator struct {
	opts     OrchestratorOptions
	registry *capability.Registry
	decider  decision.Decider
	store    database.Store        // optional; trace persistence skipped when nil
	hub      broadcast.Broadcaster // optional
	log      *slog.Logger

	rounds   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOrchestrator creates the routing loop service. store and hub may be nil.
func NewOrchestrator(opts OrchestratorOptions, registry *capability.Registry, decider decision.Decider, store database.Store, hub broadcast.Broadcaster, log *slog.Logger, meter metric.Meter) *Orchestrator {
	if opts.Name == "" {
		opts.Name = "orchestrator"
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 10
	}
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		opts:     opts,
		registry: registry,
		decider:  decider,
		store:    store,
		hub:      hub,
		log:      log,
	}
	if meter != nil {
		o.rounds, _ = meter.Int64Counter("sapguard.orchestrator.rounds",
			metric.WithDescription("Routing rounds by outcome"))
		o.duration, _ = meter.Float64Histogram("sapguard.orchestrator.round_seconds",
			metric.WithDescription("Per-round latency in seconds"))
	}
	return o
}

// Run executes one conversation turn. history is the persisted conversation
// so far; userMessage is the new request. Capability failures are recorded
// and the loop continues; only decision-service failures or context
// cancellation end the run abnormally, and even then the accumulated trace
// is persisted first.
func (o *Orchestrator) Run(ctx context.Context, conversationID string, history []conversation.Message, userMessage string) (*TurnResult, error) {
	correlationID := logger.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
		ctx = logger.WithCorrelationID(ctx, correlationID)
	}

	tr := trace.New(o.opts.Name)
	msgs := make([]conversation.Message, 0, len(history)+2)
	msgs = append(msgs, history...)
	msgs = append(msgs, conversation.Message{Role: "user", Content: userMessage})

	result := &TurnResult{
		AgentChain: []string{o.opts.Name},
		Trace:      tr,
	}
	turnIndex := len(history)

	broadcast.Publish(ctx, o.hub, broadcast.EventThinkingStart, broadcast.ThinkingStartPayload{
		ConversationID: conversationID,
		CorrelationID:  correlationID,
	})
	defer broadcast.Publish(ctx, o.hub, broadcast.EventThinkingEnd, broadcast.ThinkingStepPayload{
		ConversationID: conversationID,
		Agent:          o.opts.Name,
		Status:         "done",
	})

	specs := o.capabilitySpecs()

	for i := 0; i < o.opts.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			o.persistTrace(conversationID, turnIndex, tr)
			result.Iterations = i
			return result, fmt.Errorf("run cancelled: %w", err)
		}

		roundStart := time.Now()
		out, err := o.decider.Decide(ctx, toWire(msgs), specs)
		if err != nil {
			// The loop cannot proceed without a decision; this is the
			// one abnormal ending.
			tr.Record(trace.StepInfo{
				Phase: trace.PhaseRouting, Kind: trace.KindInference,
				Agent: o.opts.Name, Description: "decision service query failed", Err: err,
			})
			o.persistTrace(conversationID, turnIndex, tr)
			result.Iterations = i
			return result, fmt.Errorf("decision service: %w", err)
		}
		o.observeRound(ctx, roundStart, "decided")

		routing, ok := extractRouting(out)
		if ok {
			unit, known := o.registry.Get(routing.AgentName)
			if !known {
				// Unknown capability names fall through to re-querying
				// rather than failing the whole run.
				o.log.Warn("decision routed to unknown capability",
					"agent_name", routing.AgentName, "conversation_id", conversationID)
				result.Iterations = i + 1
				continue
			}

			o.dispatch(ctx, unit, routing, conversationID, correlationID, tr, &msgs, result)
			result.Iterations = i + 1
			continue
		}

		if out.Content != "" {
			final := conversation.Message{Role: "assistant", Content: out.Content}
			msgs = append(msgs, final)
			result.Messages = []conversation.Message{final}
			result.Iterations = i + 1

			broadcast.Publish(ctx, o.hub, broadcast.EventContent, broadcast.ContentPayload{
				ConversationID: conversationID, Content: out.Content,
			})
			broadcast.Publish(ctx, o.hub, broadcast.EventDone, broadcast.DonePayload{
				ConversationID: conversationID, ReasoningTrace: tr, Iterations: result.Iterations,
			})
			o.persistTrace(conversationID, turnIndex, tr)
			return result, nil
		}

		// No decision and no content; ask again.
		result.Iterations = i + 1
	}

	o.log.Warn("iteration budget exhausted",
		"conversation_id", conversationID, "max_iterations", o.opts.MaxIterations)

	final := conversation.Message{Role: "assistant", Content: o.opts.FallbackMessage}
	result.Messages = []conversation.Message{final}
	broadcast.Publish(ctx, o.hub, broadcast.EventContent, broadcast.ContentPayload{
		ConversationID: conversationID, Content: final.Content,
	})
	broadcast.Publish(ctx, o.hub, broadcast.EventDone, broadcast.DonePayload{
		ConversationID: conversationID, ReasoningTrace: tr, Iterations: result.Iterations,
	})
	o.persistTrace(conversationID, turnIndex, tr)
	return result, nil
}

// dispatch invokes one capability and folds its output back into the
// conversation. Invocation errors are recorded as error steps; they never
// abort the run.
func (o *Orchestrator) dispatch(ctx context.Context, unit capability.Capability, routing decision.Routing, conversationID, correlationID string, tr *trace.Trace, msgs *[]conversation.Message, result *TurnResult) {
	step := tr.Record(trace.StepInfo{
		Phase:       trace.PhaseRouting,
		Kind:        trace.KindDecision,
		Agent:       o.opts.Name,
		Description: "route to " + routing.AgentName,
		Input:       map[string]any{"agent_name": routing.AgentName, "agent_input": routing.AgentInput},
	})
	broadcast.Publish(ctx, o.hub, broadcast.EventThinkingStep, broadcast.ThinkingStepPayload{
		ConversationID: conversationID,
		Agent:          routing.AgentName,
		Action:         routing.AgentInput,
		Status:         "running",
	})

	invokeCtx := ctx
	if o.opts.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, o.opts.InvocationTimeout)
		defer cancel()
	}

	input := *msgs
	if routing.AgentInput != "" {
		input = append(input, conversation.Message{Role: "user", Content: routing.AgentInput})
	}

	res, err := invokeSafely(invokeCtx, unit, input, capability.RunContext{
		ConversationID: conversationID,
		CorrelationID:  correlationID,
		Trace:          tr,
		Timeout:        o.opts.InvocationTimeout,
	})
	if err != nil {
		tr.Record(trace.StepInfo{
			Phase:        trace.PhaseExecution,
			Kind:         trace.KindToolCall,
			Agent:        routing.AgentName,
			Description:  "invocation failed",
			ParentStepID: step.ID,
			Err:          err,
		})
		*msgs = append(*msgs, conversation.Message{
			Role:    "system",
			Content: fmt.Sprintf("Capability %s failed: %v", routing.AgentName, err),
		})
		broadcast.Publish(ctx, o.hub, broadcast.EventThinkingStep, broadcast.ThinkingStepPayload{
			ConversationID: conversationID, Agent: routing.AgentName, Status: "failed",
		})
		o.log.Error("capability invocation failed",
			"agent_name", routing.AgentName, "conversation_id", conversationID, "error", err)
		return
	}

	tr.Merge(res.Trace, step.ID)
	tr.Record(trace.StepInfo{
		Phase:        trace.PhaseExecution,
		Kind:         trace.KindToolCall,
		Agent:        routing.AgentName,
		Description:  "invocation completed",
		ParentStepID: step.ID,
		Output:       map[string]any{"content": res.Content},
	})

	reply := conversation.Message{
		Role:     "assistant",
		Content:  res.Content,
		Metadata: map[string]any{"agent": routing.AgentName},
	}
	*msgs = append(*msgs, reply)
	result.AgentChain = append(result.AgentChain, routing.AgentName)

	broadcast.Publish(ctx, o.hub, broadcast.EventThinkingStep, broadcast.ThinkingStepPayload{
		ConversationID: conversationID, Agent: routing.AgentName, Status: "completed",
	})
}

// invokeSafely shields the loop from panicking capabilities.
func invokeSafely(ctx context.Context, unit capability.Capability, msgs []conversation.Message, rc capability.RunContext) (res *capability.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	res, err = unit.Invoke(ctx, msgs, rc)
	if err == nil && res == nil {
		err = errors.New("capability returned no result")
	}
	return res, err
}

// extractRouting applies the routing-decision extraction policy: the decision
// service's structured output first, then a lenient scan of new content for
// an embedded object carrying "agent_name".
func extractRouting(out *decision.Outcome) (decision.Routing, bool) {
	if len(out.Routings) > 0 {
		return out.Routings[0], true
	}

	body, ok := plan.ExtractObject(out.Content)
	if !ok {
		return decision.Routing{}, false
	}
	var r decision.Routing
	if err := json.Unmarshal(body, &r); err != nil || r.AgentName == "" {
		return decision.Routing{}, false
	}
	return r, true
}

func (o *Orchestrator) capabilitySpecs() []decision.CapabilitySpec {
	list := o.registry.List()
	specs := make([]decision.CapabilitySpec, 0, len(list))
	for _, d := range list {
		specs = append(specs, decision.CapabilitySpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_input": map[string]any{
						"type":        "string",
						"description": "Instruction for the capability",
					},
				},
			},
		})
	}
	return specs
}

func (o *Orchestrator) persistTrace(conversationID string, turnIndex int, tr *trace.Trace) {
	if o.store == nil || tr.Len() == 0 {
		return
	}
	// Persist with a fresh context so a cancelled run still keeps its trace.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.AppendReasoningTrace(ctx, conversationID, turnIndex, tr); err != nil {
		o.log.Error("persist reasoning trace", "conversation_id", conversationID, "error", err)
	}
}

func (o *Orchestrator) observeRound(ctx context.Context, start time.Time, outcome string) {
	if o.rounds != nil {
		o.rounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if o.duration != nil {
		o.duration.Record(ctx, time.Since(start).Seconds())
	}
}

func toWire(msgs []conversation.Message) []decision.Message {
	out := make([]decision.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, decision.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
