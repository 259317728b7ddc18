package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"isd-finance-ai/internal/config"
	"isd-finance-ai/internal/handlers"
	"isd-finance-ai/internal/http"
	"isd-finance-ai/internal/llm"
	"isd-finance-ai/internal/retrieval"
	"isd-finance-ai/internal/service"
	"isd-finance-ai/internal/storage"
	"isd-finance-ai/internal/vectorstore"
)

// weaviateProperties are the object properties requested from Weaviate.
var weaviateProperties = []string{"chunk", "namespace", "source"}

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize vector store
	var vectorStore vectorstore.VectorStore
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		store, err := vectorstore.NewWeaviateStore(cfg.WeaviateScheme, cfg.WeaviateHost, weaviateProperties)
		if err != nil {
			log.Fatalf("Failed to create Weaviate client: %v", err)
		}
		vectorStore = store
	default:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = store.Close()
		}()
		vectorStore = store
	}
	slog.Info("Vector store initialized", "backend", cfg.VectorBackend, "collection", cfg.Collection())

	// Optional chunk store for payloads that carry only an id
	var chunks retrieval.ChunkStore
	if cfg.ChunkDBPath != "" {
		db, err := storage.New(cfg.ChunkDBPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := storage.Migrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		chunks = storage.NewChunkRepo(db)
		slog.Info("Chunk store initialized", "path", cfg.ChunkDBPath)
	}

	embedder := llm.NewEmbeddingsClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingVectorSize)
	llmClient := llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel)

	retrieverOpts := retrieval.DefaultOptions(cfg.Collection())
	retrieverOpts.TopK = cfg.ContextTopK
	retrieverOpts.MinScore = cfg.ContextMinScore
	retrieverOpts.MaxChars = cfg.ContextMaxChars
	retriever := retrieval.NewRetriever(embedder, vectorStore, chunks, retrieverOpts)

	chatService := service.NewChatService(retriever, llmClient, service.Options{
		RetrievalTimeout:  cfg.RetrievalTimeout,
		CompletionTimeout: cfg.CompletionTimeout,
	})

	landing, err := handlers.NewLandingHandler()
	if err != nil {
		log.Fatalf("Failed to render landing page: %v", err)
	}

	// Create router with dependencies
	router := http.NewRouter(&http.Deps{
		ChatService: chatService,
		VectorStore: vectorStore,
		Completions: llmClient,
		Collection:  cfg.Collection(),
		Landing:     landing,
	})

	// Start API server
	srv := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", srv.Addr)
	slog.Debug("Completion configuration", "base_url", cfg.OpenAIBaseURL, "model", cfg.ChatModel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}
