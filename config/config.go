package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the kitab backend
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Translation TranslationConfig `mapstructure:"translation"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains the generative/embedding provider configuration
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"` // openai-compatible backends
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	return nil
}

// Normalize applies model and limit defaults.
func (l LLMConfig) Normalize() LLMConfig {
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.ChatModel == "" {
		l.ChatModel = "gpt-4o-mini"
	}
	if l.EmbeddingModel == "" {
		l.EmbeddingModel = "text-embedding-3-small"
	}
	if l.Temperature <= 0 {
		l.Temperature = 0.3
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 1024
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	return l
}

// RetrievalConfig controls the coverage gate and evidence assembly.
type RetrievalConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	TopK                int     `mapstructure:"top_k"`
	MinSelectionChars   int     `mapstructure:"min_selection_chars"`
	MaxSelectionChars   int     `mapstructure:"max_selection_chars"`
	MaxHistoryTurns     int     `mapstructure:"max_history_turns"`
}

// Normalize applies retrieval defaults.
func (r RetrievalConfig) Normalize() RetrievalConfig {
	if r.ConfidenceThreshold <= 0 {
		r.ConfidenceThreshold = 0.7
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.MinSelectionChars <= 0 {
		r.MinSelectionChars = 10
	}
	if r.MaxSelectionChars <= 0 {
		r.MaxSelectionChars = 50000
	}
	if r.MaxHistoryTurns <= 0 {
		r.MaxHistoryTurns = 20
	}
	return r
}

func (r RetrievalConfig) Validate() error {
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("retrieval.confidence_threshold must be within [0,1]")
	}
	if r.MinSelectionChars > r.MaxSelectionChars {
		return fmt.Errorf("retrieval.min_selection_chars exceeds max_selection_chars")
	}
	return nil
}

// TranslationConfig controls the translation cache behaviour.
type TranslationConfig struct {
	Languages     []string      `mapstructure:"languages"`
	TTL           time.Duration `mapstructure:"ttl"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// Normalize applies translation defaults. Urdu is the only target shipped today.
func (t TranslationConfig) Normalize() TranslationConfig {
	if len(t.Languages) == 0 {
		t.Languages = []string{"ur"}
	}
	if t.TTL <= 0 {
		t.TTL = 30 * 24 * time.Hour
	}
	if t.ChunkSize <= 0 {
		t.ChunkSize = 4000
	}
	if strings.TrimSpace(t.SweepSchedule) == "" {
		t.SweepSchedule = "@hourly"
	}
	return t
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders a connection string from either the URL or the discrete fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LogFile     string `mapstructure:"log_file"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("KITAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (KITAB_*)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.LLM = config.LLM.Normalize()
	config.Retrieval = config.Retrieval.Normalize()
	config.Translation = config.Translation.Normalize()

	if err := config.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := config.Retrieval.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		return nil, err
	}
	if err := config.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
