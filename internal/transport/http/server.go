package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/ai"
	appsvc "docuchat/internal/app"
	"docuchat/internal/bootstrap"
	"docuchat/internal/cache"
	"docuchat/internal/platform/rabbitmq"
	"docuchat/internal/repository"
	"docuchat/internal/retrieval"
	"docuchat/internal/transport/http/handler"
	"docuchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	conversationRepo := repository.NewConversationRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	documentRepo := repository.NewDocumentRepository(app.MySQL)
	chunkRepo := repository.NewDocumentChunkRepository(app.MySQL)

	tokenBlacklist := cache.NewTokenBlacklist(app.Redis)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)

	embeddingCfg := ai.EmbeddingConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.EmbeddingModel,
	}
	chatCfg := ai.ChatConfig{
		BaseURL:     app.Config.LLM.BaseURL,
		APIKey:      app.Config.LLM.APIKey,
		Model:       app.Config.LLM.Model,
		Temperature: app.Config.LLM.Temperature,
		MaxTokens:   app.Config.LLM.MaxTokens,
	}

	authService := appsvc.NewAuthService(
		userRepo,
		tokenBlacklist,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	llmClient := ai.NewOpenAICompatibleClient()

	conversationService := appsvc.NewConversationService(conversationRepo, messageRepo, historyCache)
	documentService := appsvc.NewDocumentService(documentRepo, chunkRepo, app.Splitter, llmClient, embeddingCfg, appsvc.DocumentServiceOptions{
		ChunkSize:    app.Config.RAG.ChunkSize,
		ChunkOverlap: app.Config.RAG.ChunkOverlap,
		MaxUploadMB:  app.Config.RAG.MaxUploadMB,
	})
	ragService := appsvc.NewRAGService(
		conversationRepo,
		messageRepo,
		retrieval.NewRetriever(chunkRepo),
		llmClient,
		embeddingCfg,
		chatCfg,
		publisher,
		historyCache,
		appsvc.RAGServiceOptions{
			TopK:          app.Config.RAG.TopK,
			MaxDistance:   app.Config.RAG.MaxDistance,
			HistoryWindow: app.Config.RAG.HistoryWindow,
		},
	)

	authHandler := handler.NewAuthHandler(authService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	documentHandler := handler.NewDocumentHandler(documentService)
	chatHandler := handler.NewChatHandler(ragService)

	authJWT := middleware.AuthJWT(app.Config.Auth.JWTSecret, tokenBlacklist)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/logout", authJWT, authHandler.Logout)
	authGroup.GET("/me", authJWT, authHandler.Me)

	conversationGroup := v1.Group("/conversations")
	conversationGroup.Use(authJWT)
	conversationGroup.POST("", conversationHandler.Create)
	conversationGroup.GET("", conversationHandler.List)
	conversationGroup.GET("/:id", conversationHandler.Get)
	conversationGroup.PATCH("/:id", conversationHandler.Rename)
	conversationGroup.DELETE("/:id", conversationHandler.Delete)

	documentGroup := v1.Group("/documents")
	documentGroup.Use(authJWT)
	documentGroup.POST("/upload", documentHandler.Upload)
	documentGroup.GET("", documentHandler.List)
	documentGroup.GET("/:id", documentHandler.Get)
	documentGroup.DELETE("/:id", documentHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(authJWT)
	chatGroup.POST("/query", chatHandler.Query)

	return router
}
