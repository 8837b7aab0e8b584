package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/port/database"
)

// ErrConfirmationNotFound is returned when a confirmation token is unknown,
// expired, or already consumed. Tokens are strictly single-use: a second
// confirm or cancel on the same token fails rather than silently succeeding,
// so a plan can never execute twice.
var ErrConfirmationNotFound = errors.New("confirmation not found")

// Pending is a gated destructive plan awaiting an explicit decision.
type Pending struct {
	ConfirmationID string     `json:"confirmation_id"`
	Plan           *plan.Plan `json:"plan"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ConfirmationGate intercepts plans containing destructive jobs and holds
// them behind a single-use token until confirmed or cancelled.
type ConfirmationGate interface {
	// Submit returns a confirmation token if the plan needs gating, or
	// ("", false) when the plan is all-safe and may proceed directly.
	Submit(ctx context.Context, p *plan.Plan, conversationID, correlationID string) (string, bool, error)

	// Confirm consumes the token and returns the stored plan for execution.
	Confirm(ctx context.Context, confirmationID string) (*Pending, error)

	// Cancel consumes the token without executing.
	Cancel(ctx context.Context, confirmationID string) error
}

// MemoryGate is the in-process ConfirmationGate. Entries do not survive a
// restart; deployments that need durable confirmations use StoreGate.
type MemoryGate struct {
	mu      sync.Mutex
	pending map[string]*Pending
	ttl     time.Duration
	log     *slog.Logger
}

// NewMemoryGate creates an in-memory gate. Entries older than ttl are
// treated as consumed; ttl <= 0 disables expiry.
func NewMemoryGate(ttl time.Duration, log *slog.Logger) *MemoryGate {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryGate{
		pending: make(map[string]*Pending),
		ttl:     ttl,
		log:     log,
	}
}

// Submit gates the plan if it carries destructive jobs.
func (g *MemoryGate) Submit(_ context.Context, p *plan.Plan, conversationID, correlationID string) (string, bool, error) {
	if !p.HasDestructive() {
		return "", false, nil
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.pending[id] = &Pending{
		ConfirmationID: id,
		Plan:           p,
		ConversationID: conversationID,
		CorrelationID:  correlationID,
		CreatedAt:      time.Now().UTC(),
	}
	g.mu.Unlock()

	g.log.Info("plan gated for confirmation",
		"confirmation_id", id,
		"target_id", p.TargetID,
		"total_jobs", len(p.Jobs),
	)
	return id, true, nil
}

// Confirm consumes the token and returns the pending plan.
func (g *MemoryGate) Confirm(_ context.Context, confirmationID string) (*Pending, error) {
	return g.take(confirmationID)
}

// Cancel consumes the token without executing.
func (g *MemoryGate) Cancel(_ context.Context, confirmationID string) error {
	if _, err := g.take(confirmationID); err != nil {
		return err
	}
	g.log.Info("pending plan cancelled", "confirmation_id", confirmationID)
	return nil
}

// take removes and returns the entry under one critical section so a token
// can be consumed exactly once even under concurrent confirm/cancel races.
func (g *MemoryGate) take(confirmationID string) (*Pending, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pc, ok := g.pending[confirmationID]
	if !ok {
		return nil, ErrConfirmationNotFound
	}
	delete(g.pending, confirmationID)

	if g.ttl > 0 && time.Since(pc.CreatedAt) > g.ttl {
		g.log.Warn("confirmation expired", "confirmation_id", confirmationID)
		return nil, ErrConfirmationNotFound
	}
	return pc, nil
}

// StoreGate backs the gate with the persistence collaborator so pending
// confirmations survive a process restart.
type StoreGate struct {
	store database.Store
	ttl   time.Duration
	log   *slog.Logger
}

// NewStoreGate creates a store-backed gate.
func NewStoreGate(store database.Store, ttl time.Duration, log *slog.Logger) *StoreGate {
	if log == nil {
		log = slog.Default()
	}
	return &StoreGate{store: store, ttl: ttl, log: log}
}

// Submit gates the plan if it carries destructive jobs.
func (g *StoreGate) Submit(ctx context.Context, p *plan.Plan, conversationID, correlationID string) (string, bool, error) {
	if !p.HasDestructive() {
		return "", false, nil
	}

	id := uuid.NewString()
	pc := &database.PendingConfirmation{
		ConfirmationID: id,
		Plan:           p,
		ConversationID: conversationID,
		CorrelationID:  correlationID,
		ExpiresAt:      time.Now().UTC().Add(g.ttl),
	}
	if err := g.store.SavePendingConfirmation(ctx, pc); err != nil {
		return "", false, err
	}
	g.log.Info("plan gated for confirmation", "confirmation_id", id, "target_id", p.TargetID)
	return id, true, nil
}

// Confirm consumes the token and returns the pending plan.
func (g *StoreGate) Confirm(ctx context.Context, confirmationID string) (*Pending, error) {
	pc, err := g.store.TakePendingConfirmation(ctx, confirmationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrConfirmationNotFound
		}
		return nil, err
	}
	return &Pending{
		ConfirmationID: pc.ConfirmationID,
		Plan:           pc.Plan,
		ConversationID: pc.ConversationID,
		CorrelationID:  pc.CorrelationID,
	}, nil
}

// Cancel consumes the token without executing.
func (g *StoreGate) Cancel(ctx context.Context, confirmationID string) error {
	_, err := g.Confirm(ctx, confirmationID)
	return err
}
