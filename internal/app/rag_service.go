package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/ai"
	"docuchat/internal/model"
	"docuchat/internal/repository"
	"docuchat/internal/retrieval"
)

const (
	conversationTitleLimit = 50

	noContextAnswer = "I couldn't find any relevant information in your documents to answer this question."

	queryFailedDetail      = "Failed to process your query. Please try again."
	generationFailedDetail = "Failed to generate a response. Please try again."
	persistFailedDetail    = "Failed to save the response. Please try again."
)

const systemPromptTemplate = `You are a helpful assistant that answers questions based ONLY on the provided context from the user's documents.

Rules:
- Answer using only information from the context below.
- If the context does not contain enough information to answer the question, say so clearly.
- Do not invent facts that are not in the context.
- Cite the source filename when it helps the user locate the information.

Context:
%s`

// StreamEventType identifies one event in a query stream.
type StreamEventType string

const (
	EventConversationID StreamEventType = "conversation_id"
	EventSources        StreamEventType = "sources"
	EventDelta          StreamEventType = "delta"
	EventUsage          StreamEventType = "usage"
	EventDone           StreamEventType = "done"
	EventError          StreamEventType = "error"
)

// StreamEvent is one element of the ordered event sequence produced by
// QueryStream. Data holds the type-specific payload.
type StreamEvent struct {
	Type StreamEventType
	Data interface{}
}

type ConversationIDPayload struct {
	ConversationID string `json:"conversation_id"`
}

type DeltaPayload struct {
	Content string `json:"content"`
}

type DonePayload struct {
	FullText string `json:"full_text"`
}

type ErrorPayload struct {
	Detail string `json:"detail"`
}

type RAGServiceOptions struct {
	TopK          int
	MaxDistance   float64
	HistoryWindow int
}

type RAGService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	retriever        *retrieval.Retriever
	llmClient        *ai.OpenAICompatibleClient
	embeddingCfg     ai.EmbeddingConfig
	chatCfg          ai.ChatConfig
	publisher        AsyncMessagePublisher
	historyCache     HistoryCache
	opts             RAGServiceOptions
}

func NewRAGService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	retriever *retrieval.Retriever,
	llmClient *ai.OpenAICompatibleClient,
	embeddingCfg ai.EmbeddingConfig,
	chatCfg ai.ChatConfig,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	opts RAGServiceOptions,
) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	return &RAGService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		retriever:        retriever,
		llmClient:        llmClient,
		embeddingCfg:     embeddingCfg,
		chatCfg:          chatCfg,
		publisher:        publisher,
		historyCache:     historyCache,
		opts:             opts,
	}
}

type QueryInput struct {
	UserID         uint
	ConversationID string
	Question       string
	TopK           int
}

// QueryStream answers a question against the user's documents and streams the
// result as an ordered event sequence. Validation and conversation resolution
// happen synchronously; everything after the returned channel is produced by a
// single goroutine and the channel is closed when the stream ends. Every
// stream begins with a conversation_id event and ends with exactly one done
// or error event.
func (s *RAGService) QueryStream(ctx context.Context, input QueryInput) (<-chan StreamEvent, error) {
	question := strings.TrimSpace(input.Question)
	if input.UserID == 0 || question == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.resolveConversation(input.UserID, input.ConversationID, question)
	if err != nil {
		return nil, err
	}

	topK := input.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}

	events := make(chan StreamEvent, 16)
	go s.run(ctx, events, conversation, input.UserID, question, topK)
	return events, nil
}

func (s *RAGService) resolveConversation(userID uint, conversationID, question string) (*model.Conversation, error) {
	if conversationID != "" {
		conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
		if err != nil {
			return nil, err
		}
		if conversation == nil {
			return nil, ErrConversationNotFound
		}
		return conversation, nil
	}

	conversation := &model.Conversation{
		UserID: userID,
		Title:  truncateTitle(question),
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *RAGService) run(ctx context.Context, events chan<- StreamEvent, conversation *model.Conversation, userID uint, question string, topK int) {
	defer close(events)

	if !send(ctx, events, StreamEvent{Type: EventConversationID, Data: ConversationIDPayload{ConversationID: conversation.ID}}) {
		return
	}

	// History is captured before the user message is queued so the prompt
	// never contains the question being asked.
	history, err := s.messageRepo.ListRecentByConversationID(conversation.ID, s.opts.HistoryWindow)
	if err != nil {
		log.Printf("failed to load history for conversation %s: %v", conversation.ID, err)
		send(ctx, events, errorEvent(queryFailedDetail))
		return
	}

	s.publishMessage(ctx, model.Message{
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        question,
	})

	queryVec, err := s.llmClient.Embed(ctx, s.embeddingCfg, question)
	if err != nil {
		log.Printf("failed to embed query for conversation %s: %v", conversation.ID, err)
		send(ctx, events, errorEvent(queryFailedDetail))
		return
	}

	matches, err := s.retriever.Search(queryVec, userID, topK, s.opts.MaxDistance)
	if err != nil {
		log.Printf("retrieval failed for conversation %s: %v", conversation.ID, err)
		send(ctx, events, errorEvent(queryFailedDetail))
		return
	}

	sources := sourcesFromMatches(matches)
	if !send(ctx, events, StreamEvent{Type: EventSources, Data: sources}) {
		return
	}

	if len(matches) == 0 {
		if !send(ctx, events, StreamEvent{Type: EventDelta, Data: DeltaPayload{Content: noContextAnswer}}) {
			return
		}
		s.publishMessage(ctx, model.Message{
			ConversationID: conversation.ID,
			Role:           "assistant",
			Content:        noContextAnswer,
		})
		send(ctx, events, StreamEvent{Type: EventDone, Data: DonePayload{FullText: noContextAnswer}})
		return
	}

	messages := buildPrompt(matches, history, question)

	var streamBroken bool
	fullText, usage, err := s.llmClient.StreamComplete(ctx, s.chatCfg, messages, func(delta string) error {
		if !send(ctx, events, StreamEvent{Type: EventDelta, Data: DeltaPayload{Content: delta}}) {
			streamBroken = true
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		if streamBroken {
			return
		}
		log.Printf("generation failed for conversation %s: %v", conversation.ID, err)
		send(ctx, events, errorEvent(generationFailedDetail))
		return
	}

	if usage != nil {
		if !send(ctx, events, StreamEvent{Type: EventUsage, Data: usage}) {
			return
		}
	}

	assistant := model.Message{
		ConversationID: conversation.ID,
		Role:           "assistant",
		Content:        fullText,
		Sources:        sources,
	}
	if usage != nil {
		prompt := usage.PromptTokens
		completion := usage.CompletionTokens
		assistant.PromptTokens = &prompt
		assistant.CompletionTokens = &completion
	}
	if err := s.publishMessage(ctx, assistant); err != nil {
		send(ctx, events, errorEvent(persistFailedDetail))
		return
	}

	send(ctx, events, StreamEvent{Type: EventDone, Data: DonePayload{FullText: fullText}})
}

// publishMessage queues a message for async persistence and marks the cached
// history dirty so readers fall back to the database until the write lands.
func (s *RAGService) publishMessage(ctx context.Context, msg model.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()

	if s.historyCache != nil {
		if err := s.historyCache.MarkDirty(ctx, msg.ConversationID); err != nil {
			log.Printf("failed to mark history dirty for conversation %s: %v", msg.ConversationID, err)
		}
		if err := s.historyCache.DeleteHistory(ctx, msg.ConversationID); err != nil {
			log.Printf("failed to invalidate history cache for conversation %s: %v", msg.ConversationID, err)
		}
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Printf("failed to publish %s message for conversation %s: %v", msg.Role, msg.ConversationID, err)
		return err
	}
	return nil
}

func sourcesFromMatches(matches []retrieval.Match) model.SourceList {
	sources := make(model.SourceList, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, model.SourceChunk{
			DocumentID: m.Chunk.DocumentID,
			Filename:   m.Filename,
			ChunkIndex: m.Chunk.ChunkIndex,
			Content:    m.Chunk.Content,
			Score:      m.Score(),
		})
	}
	return sources
}

func buildPrompt(matches []retrieval.Match, history []model.Message, question string) []ai.ChatMessage {
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("[%s - chunk %d]\n%s", m.Filename, m.Chunk.ChunkIndex, m.Chunk.Content))
	}
	contextText := strings.Join(blocks, "\n\n---\n\n")

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, contextText),
	})
	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		messages = append(messages, ai.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

func errorEvent(detail string) StreamEvent {
	return StreamEvent{Type: EventError, Data: ErrorPayload{Detail: detail}}
}

// send delivers an event unless the consumer is gone. It reports whether the
// event was accepted.
func send(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func truncateTitle(question string) string {
	runes := []rune(question)
	if len(runes) <= conversationTitleLimit {
		return question
	}
	return string(runes[:conversationTitleLimit])
}
