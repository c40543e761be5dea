package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/pkg/pdfextract"
	"docuchat/internal/pkg/textsplit"
	"docuchat/internal/repository"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type, only .txt, .md and .pdf are accepted")
	ErrDocumentTooLarge    = errors.New("file exceeds the maximum upload size")
	ErrDocumentEmpty       = errors.New("no extractable text found in the file")
	ErrDocumentNotFound    = errors.New("document not found")
)

type DocumentServiceOptions struct {
	ChunkSize    int
	ChunkOverlap int
	MaxUploadMB  int
}

type DocumentService struct {
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.DocumentChunkRepository
	splitter     *textsplit.Splitter
	llmClient    *ai.OpenAICompatibleClient
	embeddingCfg ai.EmbeddingConfig
	opts         DocumentServiceOptions
}

func NewDocumentService(
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.DocumentChunkRepository,
	splitter *textsplit.Splitter,
	llmClient *ai.OpenAICompatibleClient,
	embeddingCfg ai.EmbeddingConfig,
	opts DocumentServiceOptions,
) *DocumentService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 512
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 10
	}
	return &DocumentService{
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		splitter:     splitter,
		llmClient:    llmClient,
		embeddingCfg: embeddingCfg,
		opts:         opts,
	}
}

type IngestInput struct {
	UserID   uint
	Filename string
	Data     []byte
}

// Ingest extracts text from an uploaded file, splits it into chunks, embeds
// every chunk and persists the document. The document row is only written
// after all embeddings succeed, so a failed upload leaves nothing behind.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*model.Document, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Filename) == "" {
		return nil, ErrInvalidInput
	}
	if len(input.Data) > s.opts.MaxUploadMB*1024*1024 {
		return nil, fmt.Errorf("%w of %d MB", ErrDocumentTooLarge, s.opts.MaxUploadMB)
	}

	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Filename), "."))
	text, err := extractText(fileType, input.Data)
	if err != nil {
		return nil, err
	}
	text = sanitizeText(text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrDocumentEmpty
	}

	chunks, err := s.splitter.Split(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		if errors.Is(err, textsplit.ErrNoChunks) {
			return nil, ErrDocumentEmpty
		}
		return nil, fmt.Errorf("split document: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.llmClient.EmbedTexts(ctx, s.embeddingCfg, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document chunks: %w", err)
	}

	document := &model.Document{
		UserID:     input.UserID,
		Filename:   input.Filename,
		FileType:   fileType,
		FileSize:   int64(len(input.Data)),
		Content:    text,
		ChunkCount: len(chunks),
	}
	if err := s.documentRepo.Create(document); err != nil {
		return nil, err
	}

	rows := make([]model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.DocumentChunk{
			DocumentID: document.ID,
			Content:    c.Content,
			ChunkIndex: c.Index,
			TokenCount: c.TokenCount,
		}
		rows[i].SetEmbedding(vectors[i])
		rows[i].SetMetadata(map[string]string{
			"filename":    input.Filename,
			"chunk_index": strconv.Itoa(c.Index),
		})
	}
	if err := s.chunkRepo.CreateBatch(rows); err != nil {
		// Keep the store consistent: a document without its chunks is
		// unreachable for retrieval, so roll it back.
		if delErr := s.documentRepo.DeleteByIDAndUserID(document.ID, input.UserID); delErr != nil {
			log.Printf("failed to roll back document %s after chunk insert error: %v", document.ID, delErr)
		}
		return nil, err
	}
	return document, nil
}

type DocumentPage struct {
	Items    []model.Document `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	HasMore  bool             `json:"has_more"`
}

func (s *DocumentService) List(userID uint, page, pageSize int) (*DocumentPage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}
	items, hasMore, err := s.documentRepo.ListByUserID(userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &DocumentPage{Items: items, Page: page, PageSize: pageSize, HasMore: hasMore}, nil
}

func (s *DocumentService) Get(userID uint, documentID string) (*model.Document, error) {
	if userID == 0 || documentID == "" {
		return nil, ErrInvalidInput
	}
	document, err := s.documentRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, ErrDocumentNotFound
	}
	return document, nil
}

func (s *DocumentService) Delete(userID uint, documentID string) error {
	if userID == 0 || documentID == "" {
		return ErrInvalidInput
	}
	document, err := s.documentRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if document == nil {
		return ErrDocumentNotFound
	}
	if err := s.chunkRepo.DeleteByDocumentID(documentID); err != nil {
		return err
	}
	return s.documentRepo.DeleteByIDAndUserID(documentID, userID)
}

func extractText(fileType string, data []byte) (string, error) {
	switch fileType {
	case "txt", "md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: file is not valid UTF-8 text", ErrUnsupportedFileType)
		}
		return string(data), nil
	case "pdf":
		text, err := pdfextract.ExtractText(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("extract pdf text: %w", err)
		}
		return text, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// sanitizeText drops control characters that break tokenization and storage,
// keeping tabs and newlines.
func sanitizeText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}
