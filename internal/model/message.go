package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceChunk is the retrieval snapshot stored alongside an assistant message.
type SourceChunk struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// SourceList stores a sources snapshot as a JSON text column.
type SourceList []SourceChunk

func (s SourceList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal sources failed: %w", err)
	}
	return string(b), nil
}

func (s *SourceList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported sources column type %T", value)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, s)
}

type Message struct {
	ID               string     `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID   string     `gorm:"type:char(36);not null;index:ix_messages_conversation_created" json:"conversation_id"`
	Role             string     `gorm:"size:20;not null" json:"role"`
	Content          string     `gorm:"type:text;not null" json:"content"`
	Sources          SourceList `gorm:"type:text" json:"sources,omitempty"`
	PromptTokens     *int       `json:"prompt_tokens,omitempty"`
	CompletionTokens *int       `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time  `gorm:"index:ix_messages_conversation_created" json:"created_at"`
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
