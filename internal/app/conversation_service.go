package app

import (
	"context"
	"errors"
	"strings"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

var ErrConversationNotFound = errors.New("conversation not found")

const defaultPageSize = 20

// AsyncMessagePublisher hands a message to the persistence queue.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// HistoryCache caches full conversation histories with a dirty marker that
// suppresses repopulation while writes are in flight.
type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID string) error
	MarkDirty(ctx context.Context, conversationID string) error
	IsDirty(ctx context.Context, conversationID string) (bool, error)
}

type ConversationService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	historyCache     HistoryCache
}

func NewConversationService(
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	historyCache HistoryCache,
) *ConversationService {
	return &ConversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		historyCache:     historyCache,
	}
}

type ConversationPage struct {
	Items    []model.Conversation `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	HasMore  bool                 `json:"has_more"`
}

type ConversationDetail struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
}

func (s *ConversationService) Create(userID uint, title string) (*model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	conversation := &model.Conversation{
		UserID: userID,
		Title:  strings.TrimSpace(title),
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *ConversationService) List(userID uint, page, pageSize int) (*ConversationPage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}

	items, hasMore, err := s.conversationRepo.ListByUserID(userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &ConversationPage{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
	}, nil
}

// GetDetail returns a conversation with its messages in creation order. The
// message list is served from the history cache when the cache is fresh.
func (s *ConversationService) GetDetail(ctx context.Context, userID uint, conversationID string) (*ConversationDetail, error) {
	if userID == 0 || conversationID == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, conversationID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, conversationID); cacheErr == nil && hit {
				return &ConversationDetail{Conversation: *conversation, Messages: cached}, nil
			}
		}
	}

	messages, err := s.messageRepo.ListByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		// Only repopulate when no write is pending, so the cache never
		// shadows a message that is still in the queue.
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, conversationID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, conversationID, messages)
		}
	}
	return &ConversationDetail{Conversation: *conversation, Messages: messages}, nil
}

func (s *ConversationService) Rename(userID uint, conversationID, title string) (*model.Conversation, error) {
	if userID == 0 || conversationID == "" {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	if err := s.conversationRepo.UpdateTitle(conversationID, userID, title); err != nil {
		return nil, err
	}
	conversation.Title = title
	return conversation, nil
}

func (s *ConversationService) Delete(ctx context.Context, userID uint, conversationID string) error {
	if userID == 0 || conversationID == "" {
		return ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}

	if err := s.messageRepo.DeleteByConversationID(conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.DeleteByIDAndUserID(conversationID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, conversationID)
	}
	return nil
}
