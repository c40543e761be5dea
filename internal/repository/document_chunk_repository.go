package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docuchat/internal/model"
)

type DocumentChunkRepository struct {
	db *gorm.DB
}

func NewDocumentChunkRepository(db *gorm.DB) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: db}
}

func (r *DocumentChunkRepository) CreateBatch(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.Create(&chunks).Error; err != nil {
		return fmt.Errorf("create document chunks batch failed: %w", err)
	}
	return nil
}

// ChunkWithFilename pairs a chunk with its owning document's filename for
// retrieval results.
type ChunkWithFilename struct {
	model.DocumentChunk
	Filename string `json:"filename"`
}

// ListEmbeddedByUserID returns every embedded chunk belonging to the user's
// documents. Chunks without an embedding never leave the store.
func (r *DocumentChunkRepository) ListEmbeddedByUserID(userID uint) ([]ChunkWithFilename, error) {
	var rows []ChunkWithFilename
	if err := r.db.Model(&model.DocumentChunk{}).
		Select("document_chunks.*, documents.filename AS filename").
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.user_id = ?", userID).
		Where("document_chunks.embedding <> ''").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list embedded chunks failed: %w", err)
	}
	return rows, nil
}

func (r *DocumentChunkRepository) ListByDocumentID(documentID string) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	if err := r.db.Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

func (r *DocumentChunkRepository) DeleteByDocumentID(documentID string) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}
