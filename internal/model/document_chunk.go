package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentChunk stores a text chunk and its embedding for retrieval.
// Embedding is stored as a JSON array of float32 for portability; the
// empty string means the chunk has not been embedded and must never be
// returned by vector search.
type DocumentChunk struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:char(36);not null;index" json:"document_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	TokenCount int       `gorm:"not null" json:"token_count"`
	Embedding  string    `gorm:"type:text" json:"-"` // JSON array of float32
	Metadata   string    `gorm:"type:text" json:"-"` // JSON object
	CreatedAt  time.Time `json:"created_at"`
}

func (c *DocumentChunk) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// EmbeddingVector returns the parsed embedding slice; nil when absent or malformed.
func (c *DocumentChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON. An empty vector clears the column.
func (c *DocumentChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = ""
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

// SetMetadata stores arbitrary chunk metadata as JSON.
func (c *DocumentChunk) SetMetadata(meta map[string]string) {
	if len(meta) == 0 {
		c.Metadata = ""
		return
	}
	b, _ := json.Marshal(meta)
	c.Metadata = string(b)
}
