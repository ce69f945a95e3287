package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for datachat-agent.
//
// Provider API keys are never stored here. They are read from OPENAI_API_KEY,
// ANTHROPIC_API_KEY and GOOGLE_API_KEY.
type Config struct {
	// Model is a "provider:model" id, for example "openai:gpt-4o-mini".
	Model string `yaml:"model"`

	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	RAG         RAGConfig         `yaml:"rag"`
	Log         LogConfig         `yaml:"log"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`

	CORSOrigins []string `yaml:"cors_origins"`

	UploadDir        string   `yaml:"upload_dir"`
	MaxFileSizeMB    int      `yaml:"max_file_size_mb"`
	AllowedFileTypes []string `yaml:"allowed_file_types"`

	// EmbeddingModel is a "provider:model" id. "none" disables embeddings and the local
	// vector store falls back to term matching.
	EmbeddingModel string `yaml:"embedding_model"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// DataDir holds the metadata database, the local vector store and the lock file.
	DataDir string `yaml:"data_dir"`
}

type DatabaseConfig struct {
	// URL is a sqlite path or file: DSN.
	URL  string `yaml:"url"`
	TopK int    `yaml:"top_k"`
	// ReadOnly rejects statements other than SELECT/WITH/EXPLAIN/PRAGMA reads in sql_db_query.
	ReadOnly *bool `yaml:"read_only,omitempty"`
	// QueryChecker adds the sql_db_query_checker tool.
	QueryChecker *bool `yaml:"query_checker,omitempty"`
	// SeedURL is downloaded to the database path when the file does not exist yet.
	SeedURL string `yaml:"seed_url,omitempty"`
}

type VectorStoreConfig struct {
	// Backend is "local" or "chroma".
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

type CheckpointConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
}

type RAGConfig struct {
	// HistoryLimit is how many recent messages a rag turn keeps.
	HistoryLimit int `yaml:"history_limit"`
	TopK         int `yaml:"top_k"`
}

type LogConfig struct {
	// Format is "console", "json" or "text".
	Format string `yaml:"format"`
	// Level is "debug|info|warn|error".
	Level string `yaml:"level"`
}

type RateLimitConfig struct {
	// RPS is the sustained per-client request rate on POST routes. Zero disables limiting.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

const (
	VectorBackendLocal  = "local"
	VectorBackendChroma = "chroma"

	CheckpointBackendMemory = "memory"
	CheckpointBackendSQLite = "sqlite"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
	LogFormatText    = "text"
)

const (
	defaultModel          = "openai:gpt-4o-mini"
	defaultDatabaseURL    = "data/app.db"
	defaultTopK           = 5
	defaultCORSOrigin     = "http://localhost:3000"
	defaultChromaHost     = "localhost"
	defaultChromaPort     = 8100
	defaultCollection     = "documents"
	defaultUploadDir      = "uploads"
	defaultMaxFileSizeMB  = 10
	defaultEmbeddingModel = "openai:text-embedding-3-small"
	defaultHost           = "0.0.0.0"
	defaultPort           = 8000
	defaultDataDir        = "data"
	defaultRAGHistory     = 5
	defaultRAGTopK        = 4
	defaultRateRPS        = 5
	defaultRateBurst      = 10
)

var defaultAllowedFileTypes = []string{"pdf", "csv", "txt", "docx"}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = defaultModel
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		c.Database.URL = defaultDatabaseURL
	}
	if c.Database.TopK == 0 {
		c.Database.TopK = defaultTopK
	}
	if c.Database.ReadOnly == nil {
		c.Database.ReadOnly = boolPtr(true)
	}
	if c.Database.QueryChecker == nil {
		c.Database.QueryChecker = boolPtr(true)
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{defaultCORSOrigin}
	}
	if strings.TrimSpace(c.VectorStore.Backend) == "" {
		c.VectorStore.Backend = VectorBackendLocal
	}
	if strings.TrimSpace(c.VectorStore.Host) == "" {
		c.VectorStore.Host = defaultChromaHost
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = defaultChromaPort
	}
	if strings.TrimSpace(c.VectorStore.Collection) == "" {
		c.VectorStore.Collection = defaultCollection
	}
	if strings.TrimSpace(c.Checkpoint.Backend) == "" {
		c.Checkpoint.Backend = CheckpointBackendMemory
	}
	if c.RAG.HistoryLimit == 0 {
		c.RAG.HistoryLimit = defaultRAGHistory
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultRAGTopK
	}
	if strings.TrimSpace(c.Log.Format) == "" {
		c.Log.Format = LogFormatConsole
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.RateLimit.RPS == 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.RPS = defaultRateRPS
		c.RateLimit.Burst = defaultRateBurst
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		c.UploadDir = defaultUploadDir
	}
	if c.MaxFileSizeMB == 0 {
		c.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if len(c.AllowedFileTypes) == 0 {
		c.AllowedFileTypes = append([]string(nil), defaultAllowedFileTypes...)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		c.EmbeddingModel = defaultEmbeddingModel
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := validateModelID(c.Model); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if c.EmbeddingsEnabled() {
		if err := validateModelID(c.EmbeddingModel); err != nil {
			return fmt.Errorf("invalid embedding_model: %w", err)
		}
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("missing database.url")
	}
	if c.Database.TopK <= 0 {
		return fmt.Errorf("invalid database.top_k %d", c.Database.TopK)
	}
	switch c.VectorStore.Backend {
	case VectorBackendLocal:
	case VectorBackendChroma:
		if strings.TrimSpace(c.VectorStore.Host) == "" || c.VectorStore.Port <= 0 {
			return errors.New("chroma vector store needs host and port")
		}
		if !c.EmbeddingsEnabled() {
			return errors.New("chroma vector store needs embedding_model")
		}
	default:
		return fmt.Errorf("invalid vector_store.backend %q", c.VectorStore.Backend)
	}
	switch c.Checkpoint.Backend {
	case CheckpointBackendMemory, CheckpointBackendSQLite:
	default:
		return fmt.Errorf("invalid checkpoint.backend %q", c.Checkpoint.Backend)
	}
	if c.RAG.HistoryLimit <= 0 {
		return fmt.Errorf("invalid rag.history_limit %d", c.RAG.HistoryLimit)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("invalid rag.top_k %d", c.RAG.TopK)
	}
	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("invalid rate_limit: negative value")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("invalid rate_limit.burst: must be positive when rps is set")
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("invalid max_file_size_mb %d", c.MaxFileSizeMB)
	}
	if len(c.AllowedFileTypes) == 0 {
		return errors.New("missing allowed_file_types")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.New("missing upload_dir")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("missing data_dir")
	}
	return nil
}

func validateModelID(id string) error {
	provider, model, ok := strings.Cut(strings.TrimSpace(id), ":")
	if !ok || strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		return fmt.Errorf("%q is not a provider:model id", id)
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "anthropic", "google_genai", "google", "gemini":
		return nil
	default:
		return fmt.Errorf("unsupported provider %q", provider)
	}
}

const EmbeddingModelNone = "none"

func (c *Config) EmbeddingsEnabled() bool {
	m := strings.TrimSpace(c.EmbeddingModel)
	return m != "" && !strings.EqualFold(m, EmbeddingModelNone)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ChromaURL is the base URL of the Chroma server.
func (c *Config) ChromaURL() string {
	return fmt.Sprintf("http://%s:%d", c.VectorStore.Host, c.VectorStore.Port)
}

// MaxFileSize is the upload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func (c *Config) ReadOnlySQL() bool {
	return c.Database.ReadOnly == nil || *c.Database.ReadOnly
}

func (c *Config) QueryCheckerEnabled() bool {
	return c.Database.QueryChecker == nil || *c.Database.QueryChecker
}

// MetadataDBPath is the sqlite file holding threads, documents and checkpoints.
func (c *Config) MetadataDBPath() string {
	return filepath.Join(c.DataDir, "datachat.sqlite")
}

// VectorDBPath is the sqlite file used by the local vector store.
func (c *Config) VectorDBPath() string {
	return filepath.Join(c.DataDir, "vectors.sqlite")
}

// LockPath is the data dir lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "datachat.lock")
}

// Load reads the YAML file at path (optional when path is empty), applies environment
// overrides, then defaults, and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.VectorStore.Backend = strings.ToLower(strings.TrimSpace(c.VectorStore.Backend))
	c.Checkpoint.Backend = strings.ToLower(strings.TrimSpace(c.Checkpoint.Backend))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.AllowedFileTypes = normalizeFileTypes(c.AllowedFileTypes)
	c.CORSOrigins = trimList(c.CORSOrigins)
}

func normalizeFileTypes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func boolPtr(v bool) *bool { return &v }
