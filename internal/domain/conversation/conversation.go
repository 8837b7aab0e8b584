// Package conversation defines the conversation and message entities shared
// by the orchestrator, capabilities, and the persistence port.
package conversation

import "time"

// Conversation groups the messages of one ongoing dialog about a workspace.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is a single conversation entry. Role follows the chat convention:
// "user", "assistant", "system", or "tool".
type Message struct {
	ID             string         `json:"id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
}
