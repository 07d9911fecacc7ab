package store

import "time"

// Turn roles. The set is closed; AppendTurn rejects anything else.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	DisplayName *string   `json:"display_name"` // Nullable
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Turn struct {
	ID        string    `json:"id"` // Using UUID for external ID
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type DocumentChunk struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title"` // Nullable
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"` // Don't marshal to JSON response, internal
	CreatedAt time.Time `json:"created_at"`
}
