package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	VectorStoreQdrant   = "qdrant"
	VectorStoreChromem  = "chromem"
	VectorStorePGVector = "pgvector"
)

// LLM providers.
const (
	LLMProviderOpenAI    = "openai"
	LLMProviderLangchain = "langchain"
)

// Conversation memory backends.
const (
	MemoryBackendMemory = "memory"
	MemoryBackendSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	EmbeddingBaseURL   string
	EmbeddingModel     string
	EmbeddingAPIKey    string
	EmbeddingDim       int // 0 means detect from the provider
	EmbeddingBatchSize int

	VectorStore  string
	QdrantURL    string
	QdrantAPIKey string
	Collection   string
	PGDSN        string
	PGDebug      bool
	ChromemPath  string

	ChunkSize    int
	ChunkOverlap int
	TopK         int
	HistoryTurns int

	UploadDir     string
	DBPath        string
	Workers       int
	QueueSize     int
	MaxUploadMB   int
	MemoryBackend string

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// loader resolves keys from the environment first, then the optional YAML file.
type loader struct {
	file map[string]string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the rest.
// If a .env file exists in the current directory or a parent directory, it is loaded.
// Environment variables already set take precedence over .env values, and both take
// precedence over the YAML file named by CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	l := &loader{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		l.file, err = readConfigFile(path)
		if err != nil {
			return nil, err
		}
	}

	// GEMINI_API_KEY is accepted for deployments that only set the provider key.
	llmKey := l.get("LLM_API_KEY", "")
	if llmKey == "" {
		llmKey = l.get("GEMINI_API_KEY", "")
	}

	cfg := &Config{
		LLMProvider:      strings.ToLower(l.get("LLM_PROVIDER", LLMProviderOpenAI)),
		LLMBaseURL:       strings.TrimRight(l.get("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"), "/"),
		LLMModel:         l.get("LLM_MODEL", "gemini-2.5-flash"),
		LLMAPIKey:        llmKey,
		EmbeddingBaseURL: strings.TrimRight(l.get("EMBEDDING_BASE_URL", "http://localhost:8081"), "/"),
		EmbeddingModel:   l.get("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbeddingAPIKey:  l.get("EMBEDDING_API_KEY", ""),
		VectorStore:      strings.ToLower(l.get("VECTOR_STORE", VectorStoreQdrant)),
		QdrantURL:        l.get("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     l.get("QDRANT_API_KEY", ""),
		Collection:       l.get("COLLECTION_NAME", "rag_collection"),
		PGDSN:            l.get("PG_DSN", ""),
		ChromemPath:      l.get("CHROMEM_PATH", ""),
		UploadDir:        l.get("UPLOAD_DIR", "uploaded_files"),
		DBPath:           l.get("DB_PATH", "./data/rag.db"),
		MemoryBackend:    strings.ToLower(l.get("MEMORY_BACKEND", MemoryBackendMemory)),
		APIPort:          l.get("API_PORT", "8000"),
		LogFormat:        strings.ToLower(l.get("LOG_FORMAT", "text")),
	}

	ints := []struct {
		key    string
		def    int
		min    int
		target *int
	}{
		{"EMBEDDING_DIM", 0, 0, &cfg.EmbeddingDim},
		{"EMBEDDING_BATCH_SIZE", 20, 1, &cfg.EmbeddingBatchSize},
		{"CHUNK_SIZE", 2000, 1, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 200, 0, &cfg.ChunkOverlap},
		{"TOP_K", 4, 1, &cfg.TopK},
		{"HISTORY_TURNS", 0, 0, &cfg.HistoryTurns},
		{"INGEST_WORKERS", 2, 1, &cfg.Workers},
		{"INGEST_QUEUE_SIZE", 64, 1, &cfg.QueueSize},
		{"MAX_UPLOAD_MB", 50, 1, &cfg.MaxUploadMB},
	}
	for _, in := range ints {
		v, err := l.getInt(in.key, in.def, in.min)
		if err != nil {
			return nil, err
		}
		*in.target = v
	}

	pgDebug, err := strconv.ParseBool(l.get("PG_DEBUG", "false"))
	if err != nil {
		return nil, fmt.Errorf("PG_DEBUG must be a boolean: %w", err)
	}
	cfg.PGDebug = pgDebug

	level, err := parseLogLevel(l.get("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case LLMProviderOpenAI, LLMProviderLangchain:
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of %s, %s: got %q", LLMProviderOpenAI, LLMProviderLangchain, c.LLMProvider)
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY (or GEMINI_API_KEY) is required")
	}

	switch c.VectorStore {
	case VectorStoreQdrant, VectorStoreChromem:
	case VectorStorePGVector:
		if c.PGDSN == "" {
			return fmt.Errorf("PG_DSN is required when VECTOR_STORE=%s", VectorStorePGVector)
		}
	default:
		return fmt.Errorf("VECTOR_STORE must be one of %s, %s, %s: got %q", VectorStoreQdrant, VectorStoreChromem, VectorStorePGVector, c.VectorStore)
	}

	switch c.MemoryBackend {
	case MemoryBackendMemory, MemoryBackendSQLite:
	default:
		return fmt.Errorf("MEMORY_BACKEND must be one of %s, %s: got %q", MemoryBackendMemory, MemoryBackendSQLite, c.MemoryBackend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json: got %q", c.LogFormat)
	}

	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.Collection == "" {
		return fmt.Errorf("COLLECTION_NAME must not be empty")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (l *loader) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := l.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) getInt(key string, defaultValue, minValue int) (int, error) {
	raw := l.get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if v < minValue {
		return 0, fmt.Errorf("%s must be at least %d", key, minValue)
	}
	return v, nil
}

// readConfigFile reads a flat YAML document of KEY: value pairs.
func readConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: got %q", s)
	}
}
