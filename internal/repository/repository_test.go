package repository

import (
	"testing"
	"time"

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

func TestConversationRepository_ListPagination(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)

	for i := 0; i < 5; i++ {
		if err := repo.Create(&model.Conversation{UserID: 1, Title: "c"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.Create(&model.Conversation{UserID: 2, Title: "other user"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	page1, hasMore, err := repo.ListByUserID(1, 1, 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 2 || !hasMore {
		t.Fatalf("expected 2 items and more remaining, got %d items hasMore=%v", len(page1), hasMore)
	}

	page3, hasMore, err := repo.ListByUserID(1, 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3) != 1 || hasMore {
		t.Fatalf("expected final page with 1 item, got %d items hasMore=%v", len(page3), hasMore)
	}
}

func TestConversationRepository_GetScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)

	conversation := &model.Conversation{UserID: 1, Title: "mine"}
	if err := repo.Create(conversation); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByIDAndUserID(conversation.ID, 1)
	if err != nil || got == nil {
		t.Fatalf("owner lookup failed: %v, %v", got, err)
	}

	other, err := repo.GetByIDAndUserID(conversation.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Fatalf("conversation must not be visible to another user")
	}
}

func TestConversationRepository_TouchBumpsUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db)

	conversation := &model.Conversation{UserID: 1, Title: "c"}
	if err := repo.Create(conversation); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := conversation.UpdatedAt

	time.Sleep(10 * time.Millisecond)
	if err := repo.Touch(conversation.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := repo.GetByIDAndUserID(conversation.ID, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to advance: %v -> %v", before, got.UpdatedAt)
	}
}

func TestMessageRepository_ListOrdersByCreation(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)

	base := time.Now().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		msg := &model.Message{
			ConversationID: "conv-1",
			Role:           "user",
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(msg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	messages, err := repo.ListByConversationID("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "first" || messages[2].Content != "third" {
		t.Fatalf("unexpected order: %s ... %s", messages[0].Content, messages[2].Content)
	}
}

func TestMessageRepository_ListRecentReturnsNewestChronologically(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := &model.Message{
			ConversationID: "conv-1",
			Role:           "user",
			Content:        string(rune('a' + i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(msg); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	recent, err := repo.ListRecentByConversationID("conv-1", 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	if recent[0].Content != "c" || recent[2].Content != "e" {
		t.Fatalf("expected newest 3 in chronological order, got %s ... %s", recent[0].Content, recent[2].Content)
	}
}

func TestMessageRepository_SourcesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)

	msg := &model.Message{
		ConversationID: "conv-1",
		Role:           "assistant",
		Content:        "answer",
		Sources: model.SourceList{
			{DocumentID: "doc-1", Filename: "a.txt", ChunkIndex: 2, Content: "ctx", Score: 0.91},
		},
	}
	if err := repo.Create(msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	messages, err := repo.ListByConversationID("conv-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 || len(messages[0].Sources) != 1 {
		t.Fatalf("expected 1 message with 1 source, got %+v", messages)
	}
	src := messages[0].Sources[0]
	if src.DocumentID != "doc-1" || src.Filename != "a.txt" || src.ChunkIndex != 2 || src.Score != 0.91 {
		t.Fatalf("source did not survive round trip: %+v", src)
	}
}

func TestDocumentChunkRepository_ListEmbeddedScopesAndFilters(t *testing.T) {
	db := newTestDB(t)
	docRepo := NewDocumentRepository(db)
	chunkRepo := NewDocumentChunkRepository(db)

	mine := &model.Document{UserID: 1, Filename: "mine.txt", FileType: "txt", Content: "x"}
	theirs := &model.Document{UserID: 2, Filename: "theirs.txt", FileType: "txt", Content: "y"}
	if err := docRepo.Create(mine); err != nil {
		t.Fatalf("create doc: %v", err)
	}
	if err := docRepo.Create(theirs); err != nil {
		t.Fatalf("create doc: %v", err)
	}

	embedded := model.DocumentChunk{DocumentID: mine.ID, Content: "embedded", ChunkIndex: 0}
	embedded.SetEmbedding([]float32{1, 2, 3})
	pending := model.DocumentChunk{DocumentID: mine.ID, Content: "pending", ChunkIndex: 1}
	foreign := model.DocumentChunk{DocumentID: theirs.ID, Content: "foreign", ChunkIndex: 0}
	foreign.SetEmbedding([]float32{4, 5, 6})

	if err := chunkRepo.CreateBatch([]model.DocumentChunk{embedded, pending, foreign}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	rows, err := chunkRepo.ListEmbeddedByUserID(1)
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly the owner's embedded chunk, got %d rows", len(rows))
	}
	if rows[0].Content != "embedded" || rows[0].Filename != "mine.txt" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if len(rows[0].EmbeddingVector()) != 3 {
		t.Fatalf("embedding did not survive: %q", rows[0].Embedding)
	}
}

func TestDocumentChunkRepository_DeleteByDocumentID(t *testing.T) {
	db := newTestDB(t)
	docRepo := NewDocumentRepository(db)
	chunkRepo := NewDocumentChunkRepository(db)

	doc := &model.Document{UserID: 1, Filename: "a.txt", FileType: "txt", Content: "x"}
	if err := docRepo.Create(doc); err != nil {
		t.Fatalf("create doc: %v", err)
	}
	if err := chunkRepo.CreateBatch([]model.DocumentChunk{
		{DocumentID: doc.ID, Content: "one", ChunkIndex: 0},
		{DocumentID: doc.ID, Content: "two", ChunkIndex: 1},
	}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	if err := chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	chunks, err := chunkRepo.ListByDocumentID(doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks after delete, got %d", len(chunks))
	}
}

func TestUserRepository_ExistsByUsernameOrEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	user := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", IsActive: true}
	if err := repo.Create(user); err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err := repo.ExistsByUsernameOrEmail("alice", "nobody@example.com")
	if err != nil || !exists {
		t.Fatalf("expected username match, got %v, %v", exists, err)
	}
	exists, err = repo.ExistsByUsernameOrEmail("nobody", "alice@example.com")
	if err != nil || !exists {
		t.Fatalf("expected email match, got %v, %v", exists, err)
	}
	exists, err = repo.ExistsByUsernameOrEmail("nobody", "nobody@example.com")
	if err != nil || exists {
		t.Fatalf("expected no match, got %v, %v", exists, err)
	}
}
