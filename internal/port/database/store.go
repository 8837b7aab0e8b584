// Package database defines the persistence port (interface) for
// conversations, messages, reasoning traces, and durable pending
// confirmations.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/trace"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PendingConfirmation is the stored form of a gated destructive plan.
type PendingConfirmation struct {
	ConfirmationID string
	Plan           *plan.Plan
	ConversationID string
	CorrelationID  string
	ExpiresAt      time.Time
}

// Store is the persistence port. The conversation side is append/read only;
// pending confirmations are single-consume via TakePendingConfirmation.
type Store interface {
	CreateConversation(ctx context.Context, c *conversation.Conversation) error
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)

	AppendMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) error
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)

	AppendReasoningTrace(ctx context.Context, conversationID string, turnIndex int, tr *trace.Trace) error

	SavePendingConfirmation(ctx context.Context, pc *PendingConfirmation) error
	// TakePendingConfirmation atomically reads and deletes the entry.
	// Returns ErrNotFound for unknown, expired, or already-consumed tokens.
	TakePendingConfirmation(ctx context.Context, confirmationID string) (*PendingConfirmation, error)
}
