package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD                         = false
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, it falls back to an internal in-memory store
	TRACE_ID_HEADER                 = "X-Trace-Id"
	RATE_LIMIT_PER_SECOND           = 2
	BURST_RATE_LIMIT_PER_SECOND     = 5

	//trusted identity headers set by the auth gateway in front of the service
	UserIdHeader          = "X-User-Id"
	UserRoleHeader        = "X-User-Role"
	JurisdictionIdsHeader = "X-Jurisdiction-Ids"

	//semantic answer cache
	CacheSimilarityCutoff = 0.97
	AnswerCacheCollection = "answer-cache"

	//the chunk collection is shared by all jurisdictions, isolation is a payload filter
	ChunkCollectionName = "civic-chunks"
	ChunkDBName         = "civic-rag.db"

	EmbeddingOutputDimensionality int32 = 1536
	EmbeddingBatchSize                  = 100 //gemini rejects batches above 100 contents
	EmbeddingRetryDelay                 = 5 * time.Second

	RequestsPerNewWorkerCount int64 = 10
	MaxWorkerCount            int64 = 10
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute

	//per request deadlines
	QueryTimeout     = 45 * time.Second
	IngestionTimeout = 10 * time.Minute
	PageExtractLimit = 10 * time.Second
	EnqueueTimeout   = 5 * time.Second

	//serverTimeouts
	ReadTimeout            = 15 * time.Second
	WriteTimeout           = 60 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//server listening port
	ServerListenAddr = ":3000"

	//ingestion job buffer limit
	BufferLimit = 100

	//uploads
	MaxUploadBytes = 32 << 20
	BlobDirectory  = "temporary_data"

	//vectorDB
	QdrantHost     = "localhost"
	QdrantGrpcPort = 6334
	QdrantUseTLS   = false //set for https
	QdrantPoolSize = 1     //2-5 is preferred for prod according to documentation

	//providers
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	GeminiModelName      = "gemini-2.5-flash-lite-preview-09-2025"
	GoogleEmbeddingModel = "gemini-embedding-001"
	OpenAIModelName      = "gpt-4o-mini"
	OpenAIEmbeddingModel = "text-embedding-3-large"
	OllamaModelName      = "llama3.1"
	OllamaEmbeddingModel = "nomic-embed-text"

	//grounded answers should not be creative
	ModelTemperature float32 = 0.1
	ModelMaxTokens           = 1024

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second
	ProviderHTTPTimeout = 60 * time.Second

	//chunk store backends
	ChunkStoreQdrant = "qdrant"
	ChunkStoreSQLite = "sqlite"

	//redis
	redisHost = "127.0.0.1"
	redisPort = "6379"
	RedisAddr = redisHost + ":" + redisPort

	//redis has 16 DB we can use
	RedisDocumentStore = 0
	RedisFeedbackStore = 1
)
