package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/port/database"
)

// ConversationService glues the orchestrator to the persistence collaborator:
// it loads history, runs a turn, and appends the exchanged messages.
type ConversationService struct {
	store        database.Store
	orchestrator *Orchestrator
	log          *slog.Logger
}

// NewConversationService creates the conversation turn service.
func NewConversationService(store database.Store, orch *Orchestrator, log *slog.Logger) *ConversationService {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationService{store: store, orchestrator: orch, log: log}
}

// StartConversation creates a new conversation for a workspace.
func (s *ConversationService) StartConversation(ctx context.Context, workspaceID, title string) (*conversation.Conversation, error) {
	c := &conversation.Conversation{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Title:       title,
	}
	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// SendMessage runs one orchestration turn for the conversation and persists
// both sides of the exchange. The turn result is returned even when the run
// ended abnormally so callers can surface the partial trace.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID, content string) (*TurnResult, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := s.store.AppendMessage(ctx, conversationID, "user", content, nil); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	result, runErr := s.orchestrator.Run(ctx, conversationID, history, content)

	for _, m := range result.Messages {
		if err := s.store.AppendMessage(ctx, conversationID, m.Role, m.Content, m.Metadata); err != nil {
			s.log.Error("store assistant message", "conversation_id", conversationID, "error", err)
		}
	}
	return result, runErr
}
