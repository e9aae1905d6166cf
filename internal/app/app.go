package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/customHttpClient"
	"github.com/akolanti/CivicRAG/internal/data/blobStore"
	"github.com/akolanti/CivicRAG/internal/data/redisStore"
	"github.com/akolanti/CivicRAG/internal/data/store"
	"github.com/akolanti/CivicRAG/internal/domain/jobModel"
	"github.com/akolanti/CivicRAG/internal/rag"
	"github.com/akolanti/CivicRAG/internal/rag/embedding"
	"github.com/akolanti/CivicRAG/internal/rag/embedding/googleEmbedding"
	"github.com/akolanti/CivicRAG/internal/rag/embedding/ollamaEmbedding"
	"github.com/akolanti/CivicRAG/internal/rag/embedding/openaiEmbedding"
	"github.com/akolanti/CivicRAG/internal/rag/extract"
	"github.com/akolanti/CivicRAG/internal/rag/grounding"
	"github.com/akolanti/CivicRAG/internal/rag/ingest"
	"github.com/akolanti/CivicRAG/internal/rag/language"
	"github.com/akolanti/CivicRAG/internal/rag/llm"
	"github.com/akolanti/CivicRAG/internal/rag/llm/gemini"
	"github.com/akolanti/CivicRAG/internal/rag/llm/ollamaLLM"
	"github.com/akolanti/CivicRAG/internal/rag/llm/openaiLLM"
	"github.com/akolanti/CivicRAG/internal/rag/rerank"
	"github.com/akolanti/CivicRAG/internal/rag/retrieval"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB/qdrantDB"
	"github.com/akolanti/CivicRAG/internal/rag/vectorDB/sqliteDB"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
)

var logger = logger_i.NewLogger("bootstrap")

// App is everything a transport needs, built once from Settings.
type App struct {
	Settings  config.Settings
	Tuning    *config.TuningWatcher
	Service   rag.Service
	Chunks    vectorDB.ChunkStore
	Documents jobModel.DocumentStore
	Feedback  jobModel.FeedbackStore
}

// Build wires providers and stores. Redis and the tuning watcher live as long as ctx, cancel it
// and call Close to shut them down.
func Build(ctx context.Context, settings config.Settings) (*App, error) {
	tuning, err := config.NewTuningWatcher(settings.TuningFile)
	if err != nil {
		return nil, err
	}
	if err := tuning.Watch(ctx); err != nil {
		logger.Warn("tuning hot reload disabled", "error", err)
	}

	provider, err := NewLLM(ctx, settings)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbedder(ctx, settings)
	if err != nil {
		return nil, err
	}

	chunks, cache, err := OpenChunkStore(ctx, settings, embedder)
	if err != nil {
		return nil, err
	}
	documents, feedback, err := OpenRecordStores(ctx, settings)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	blobs, err := blobStore.NewFileBlobStore(settings.BlobDir)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	lang := language.NewService(provider, tuning)
	service := rag.NewService(rag.Dependencies{
		Engine:    retrieval.NewEngine(chunks, embedder, lang, provider, tuning),
		Reranker:  rerank.NewReranker(provider, tuning),
		Grounding: grounding.NewController(provider, lang, tuning),
		Pipeline: ingest.NewPipeline(ingest.Dependencies{
			Extractor: extract.NewExtractor(),
			Language:  lang,
			Embedder:  embedder,
			Chunks:    chunks,
			Documents: documents,
			Cache:     cache,
			Tuning:    tuning,
		}),
		Chunks:    chunks,
		Documents: documents,
		Feedback:  feedback,
		Blobs:     blobs,
		Cache:     cache,
	})

	logger.Info("services ready",
		"llm", settings.LLMProvider, "embedding", embedder.Model(), "chunkStore", settings.ChunkStore)
	return &App{
		Settings:  settings,
		Tuning:    tuning,
		Service:   service,
		Chunks:    chunks,
		Documents: documents,
		Feedback:  feedback,
	}, nil
}

// Close releases the chunk store and pooled provider connections. Redis closes with the Build ctx.
func (a *App) Close() {
	if err := a.Chunks.Close(); err != nil {
		logger.Error("closing chunk store", "error", err)
	}
	customHttpClient.CloseIdle()
}

func NewLLM(ctx context.Context, settings config.Settings) (llm.Provider, error) {
	switch settings.LLMProvider {
	case config.ProviderGemini:
		return gemini.NewGeminiClient(ctx, config.GeminiModelName, settings.GoogleAPIKey)
	case config.ProviderOpenAI:
		return openaiLLM.NewOpenAIClient(config.OpenAIModelName, settings.OpenAIAPIKey)
	case config.ProviderOllama:
		return ollamaLLM.NewOllamaClient(settings.OllamaHost, config.OllamaModelName)
	}
	return nil, fmt.Errorf("unknown llm provider %q", settings.LLMProvider)
}

func NewEmbedder(ctx context.Context, settings config.Settings) (embedding.Embedder, error) {
	switch settings.EmbeddingProvider {
	case config.ProviderGemini:
		return googleEmbedding.NewGoogleEmbeddingClient(ctx, config.GoogleEmbeddingModel, settings.GoogleAPIKey)
	case config.ProviderOpenAI:
		return openaiEmbedding.NewOpenAIEmbeddingClient(config.OpenAIEmbeddingModel, settings.OpenAIAPIKey)
	case config.ProviderOllama:
		return ollamaEmbedding.NewOllamaEmbeddingClient(settings.OllamaHost, config.OllamaEmbeddingModel)
	}
	return nil, fmt.Errorf("unknown embedding provider %q", settings.EmbeddingProvider)
}

// OpenChunkStore returns the configured chunk store and the answer cache that goes with it.
// Only qdrant has a cache, sqlite gets the no-op one.
func OpenChunkStore(ctx context.Context, settings config.Settings, embedder embedding.Embedder) (vectorDB.ChunkStore, vectorDB.AnswerCache, error) {
	switch settings.ChunkStore {
	case config.ChunkStoreSQLite:
		s, err := sqliteDB.Open(ctx, settings.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, vectorDB.NoopCache{}, nil

	case config.ChunkStoreQdrant:
		dimension, err := EmbeddingDimension(ctx, settings, embedder)
		if err != nil {
			return nil, nil, err
		}
		client, err := qdrantDB.NewClient(qdrantDB.Config{Host: settings.QdrantHost, Port: settings.QdrantGrpcPort})
		if err != nil {
			return nil, nil, err
		}
		chunks, err := qdrantDB.NewChunkStore(ctx, client, qdrantDB.Config{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantGrpcPort,
			Collection: config.ChunkCollectionName,
			Dimension:  dimension,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		cache, err := qdrantDB.NewSemanticCache(ctx, client, dimension)
		if err != nil {
			logger.Warn("answer cache disabled", "error", err)
			return chunks, vectorDB.NoopCache{}, nil
		}
		return chunks, cache, nil
	}
	return nil, nil, fmt.Errorf("unknown chunk store %q", settings.ChunkStore)
}

// EmbeddingDimension is fixed for the hosted providers, ollama models are asked once.
func EmbeddingDimension(ctx context.Context, settings config.Settings, embedder embedding.Embedder) (uint64, error) {
	if settings.EmbeddingProvider != config.ProviderOllama {
		return uint64(config.EmbeddingOutputDimensionality), nil
	}
	vector, err := embedder.GetEmbedding(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vector) == 0 {
		return 0, errors.New("probe embedding dimension: empty vector")
	}
	return uint64(len(vector)), nil
}

// OpenRecordStores prefers redis and falls back to memory when it is down.
func OpenRecordStores(ctx context.Context, settings config.Settings) (jobModel.DocumentStore, jobModel.FeedbackStore, error) {
	opts := redisStore.Options{Addr: settings.RedisAddr, Password: settings.RedisPassword}

	documents := store.GetRedisDocumentStore(ctx, opts)
	feedback := store.GetRedisFeedbackStore(ctx, opts)
	if documents != nil && feedback != nil {
		return documents, feedback, nil
	}
	if !config.FALLBACK_REDIS_TO_INTERNALSTORE {
		return nil, nil, fmt.Errorf("redis at %s is offline", settings.RedisAddr)
	}
	logger.Warn("redis stores are offline, records are kept in memory", "addr", settings.RedisAddr)
	return store.InitInMemoryDocumentStore(), store.InitInMemoryFeedbackStore(), nil
}
