package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsgate/sapguard/internal/domain/conversation"
	"github.com/opsgate/sapguard/internal/domain/plan"
	"github.com/opsgate/sapguard/internal/domain/trace"
	"github.com/opsgate/sapguard/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, workspace_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.WorkspaceID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.WorkspaceID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) error {
	var meta []byte
	if metadata != nil {
		var err error
		if meta, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), conversationID, role, content, meta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []conversation.Message
	for rows.Next() {
		var m conversation.Message
		var meta []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) AppendReasoningTrace(ctx context.Context, conversationID string, turnIndex int, tr *trace.Trace) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reasoning_traces (conversation_id, turn_index, trace)
		 VALUES ($1, $2, $3)`, conversationID, turnIndex, data)
	if err != nil {
		return fmt.Errorf("append reasoning trace: %w", err)
	}
	return nil
}

func (s *Store) SavePendingConfirmation(ctx context.Context, pc *database.PendingConfirmation) error {
	planJSON, err := json.Marshal(pc.Plan)
	if err != nil {
		return fmt.Errorf("marshal pending plan: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_confirmations (confirmation_id, plan, conversation_id, correlation_id, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		pc.ConfirmationID, planJSON, pc.ConversationID, pc.CorrelationID, pc.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save pending confirmation: %w", err)
	}
	return nil
}

// TakePendingConfirmation deletes and returns the entry in one statement so
// concurrent confirmations of the same token cannot both succeed. Expired
// entries are treated as absent and removed.
func (s *Store) TakePendingConfirmation(ctx context.Context, confirmationID string) (*database.PendingConfirmation, error) {
	var (
		pc       database.PendingConfirmation
		planJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`DELETE FROM pending_confirmations
		 WHERE confirmation_id = $1
		 RETURNING confirmation_id, plan, conversation_id, correlation_id, expires_at`,
		confirmationID).
		Scan(&pc.ConfirmationID, &planJSON, &pc.ConversationID, &pc.CorrelationID, &pc.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending confirmation: %w", err)
	}

	if time.Now().After(pc.ExpiresAt) {
		return nil, database.ErrNotFound
	}

	var p plan.Plan
	if err := json.Unmarshal(planJSON, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending plan: %w", err)
	}
	pc.Plan = &p
	return &pc, nil
}
