package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docuchat/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.Document{},
		&model.DocumentChunk{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// runeTokenizer gives tests a predictable one-token-per-rune vocabulary.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	tokens := make([]int, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, int(r))
	}
	return tokens
}

func (runeTokenizer) Decode(tokens []int) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteRune(rune(t))
	}
	return b.String()
}

// recordingPublisher captures published messages instead of using a broker.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) all() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// fakeHistoryCache is an in-memory HistoryCache with dirty-marker semantics.
type fakeHistoryCache struct {
	mu       sync.Mutex
	history  map[string][]model.Message
	dirty    map[string]bool
	dirtyLog []string
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		history: make(map[string][]model.Message),
		dirty:   make(map[string]bool),
	}
}

func (c *fakeHistoryCache) GetHistory(_ context.Context, conversationID string) ([]model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.history[conversationID]
	return msgs, ok, nil
}

func (c *fakeHistoryCache) SetHistory(_ context.Context, conversationID string, messages []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[conversationID] = messages
	return nil
}

func (c *fakeHistoryCache) DeleteHistory(_ context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, conversationID)
	return nil
}

func (c *fakeHistoryCache) MarkDirty(_ context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[conversationID] = true
	c.dirtyLog = append(c.dirtyLog, conversationID)
	return nil
}

func (c *fakeHistoryCache) IsDirty(_ context.Context, conversationID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[conversationID], nil
}
