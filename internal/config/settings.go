package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings are the runtime knobs that differ between deployments. Compile-time defaults live in
// environmentVariables.go, anything here can be overridden from the environment or a .env file.
type Settings struct {
	ListenAddr string

	AuthToken    string
	NoAuthBypass bool

	EmbeddingProvider string
	LLMProvider       string
	GoogleAPIKey      string
	OpenAIAPIKey      string
	OllamaHost        string

	ChunkStore     string
	SQLitePath     string
	QdrantHost     string
	QdrantGrpcPort int

	RedisAddr     string
	RedisPassword string

	BlobDir    string
	TuningFile string
}

// LoadSettings reads .env (when present) and the process environment.
func LoadSettings() Settings {
	// a missing .env is normal in containers
	_ = godotenv.Load()

	return Settings{
		ListenAddr:        getEnv("LISTEN_ADDR", ServerListenAddr),
		AuthToken:         os.Getenv("AUTH_TOKEN"),
		NoAuthBypass:      getEnvBool("NO_AUTH_BYPASS", false),
		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderGemini)),
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OllamaHost:        os.Getenv("OLLAMA_HOST"),
		ChunkStore:        strings.ToLower(getEnv("CHUNK_STORE", ChunkStoreQdrant)),
		SQLitePath:        getEnv("SQLITE_PATH", ChunkDBName),
		QdrantHost:        getEnv("QDRANT_HOST", QdrantHost),
		QdrantGrpcPort:    getEnvInt("QDRANT_GRPC_PORT", QdrantGrpcPort),
		RedisAddr:         getEnv("REDIS_ADDR", RedisAddr),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		BlobDir:           getEnv("BLOB_DIR", BlobDirectory),
		TuningFile:        os.Getenv("TUNING_FILE"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
