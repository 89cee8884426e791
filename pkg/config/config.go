package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

const defaultModelURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Config holds the application configuration
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir" jsonschema:"default=data,description=Directory for the database and artifacts"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN          string `yaml:"dsn" json:"dsn" jsonschema:"description=Database file, defaults to podscope.db in data_dir"`
		MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=4,description=Maximum number of open connections"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule struct {
		Enabled  bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Run sync periodically in serve mode"`
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"default=1h,description=Interval between scheduled syncs"`
	} `yaml:"schedule" json:"schedule" jsonschema:"description=Scheduler configuration"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch" jsonschema:"description=Feed fetching"`

	Download DownloadConfig `yaml:"download" json:"download" jsonschema:"description=Content download"`

	Transcription TranscriptionConfig `yaml:"transcription" json:"transcription" jsonschema:"description=Audio transcription"`

	LLM LLMConfig `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for summarization"`

	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline" jsonschema:"description=Pipeline behavior"`
}

// FetchConfig holds feed fetching settings
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Feed request timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Podscope/1.0,description=User agent for HTTP requests"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=4,minimum=1,description=Feeds fetched in parallel"`
}

// DownloadConfig holds content download settings
type DownloadConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30m,description=Timeout for a single download"`
	MaxSize     int64         `yaml:"max_size" json:"max_size" jsonschema:"default=0,description=Maximum content size in bytes, 0 for no limit"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=3,minimum=1,description=Downloads in parallel"`
}

// TranscriptionConfig holds speech to text settings
type TranscriptionConfig struct {
	Backend       string `yaml:"backend" json:"backend" jsonschema:"default=local,enum=local,enum=api,description=Local whisper.cpp or the LLM endpoint transcription API"`
	FFmpeg        string `yaml:"ffmpeg" json:"ffmpeg" jsonschema:"default=ffmpeg,description=ffmpeg binary"`
	WhisperBinary string `yaml:"whisper_binary" json:"whisper_binary" jsonschema:"default=whisper-cli,description=whisper.cpp cli binary"`
	WhisperModel  string `yaml:"whisper_model" json:"whisper_model" jsonschema:"default=base,description=Model name or path to a ggml model file"`
	ModelURL      string `yaml:"model_url" json:"model_url" jsonschema:"default=https://huggingface.co/ggerganov/whisper.cpp/resolve/main,description=Base url a missing named model is downloaded from"`
	APIModel      string `yaml:"api_model" json:"api_model" jsonschema:"default=whisper-1,description=Model for the api backend"`
	Language      string `yaml:"language" json:"language" jsonschema:"default=en,description=Spoken language or auto"`
	InitialPrompt string `yaml:"initial_prompt" json:"initial_prompt" jsonschema:"description=Prompt guiding transcription style and vocabulary"`
	CPUPercent    int    `yaml:"cpu_percent" json:"cpu_percent" jsonschema:"default=80,minimum=1,maximum=100,description=Share of CPU threads used by whisper"`
	Concurrency   int    `yaml:"concurrency" json:"concurrency" jsonschema:"default=1,minimum=1,description=Transcriptions in parallel"`
}

// LLMConfig holds LLM configuration for summarization
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey       string        `yaml:"api_key,omitempty" json:"-"`
	APIKeyEnv    string        `yaml:"api_key_env" json:"api_key_env" jsonschema:"default=GEMINI_API_KEY,description=Environment variable with the API key when api_key is not set"`
	Model        string        `yaml:"model" json:"model" jsonschema:"default=gemini-2.0-flash,description=Model name"`
	Temperature  float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=4096,description=Maximum tokens in response"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=5m,description=Request timeout"`
	SystemPrompt string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt override"`
	JSONSchema   bool          `yaml:"json_schema" json:"json_schema" jsonschema:"default=false,description=Request a JSON-schema response format (not all models support this)"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=2,minimum=1,description=Summarization calls in parallel"`
	Chunk        ChunkConfig   `yaml:"chunk" json:"chunk" jsonschema:"description=Long text handling"`
}

// ChunkConfig holds limits of the chunk-reduce summarization, in text length units
type ChunkConfig struct {
	Capacity int `yaml:"capacity" json:"capacity" jsonschema:"default=24000,description=Texts up to this length are summarized in one call"`
	Window   int `yaml:"window" json:"window" jsonschema:"default=8000,description=Window length for longer texts"`
	Overlap  int `yaml:"overlap" json:"overlap" jsonschema:"default=400,description=Overlap between windows"`
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts" jsonschema:"default=3,minimum=1,description=Attempts for transient failures"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay" jsonschema:"default=2s,description=Initial backoff delay"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" jsonschema:"default=30s,description=Maximum backoff delay"`
	MarkUnpublished bool          `yaml:"mark_unpublished" json:"mark_unpublished" jsonschema:"default=true,description=Flag items that vanished from their feed"`
	CleanupContent  bool          `yaml:"cleanup_content" json:"cleanup_content" jsonschema:"default=true,description=Remove downloaded content once summarized"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.Pipeline.MarkUnpublished = true
	cfg.Pipeline.CleanupContent = true
	setDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file. A missing file is not an error, defaults are used.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			lgr.Printf("[DEBUG] config %s not found, using defaults", path)
			cfg := Default()
			return cfg, validate(cfg)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	cfg.Pipeline.MarkUnpublished = true
	cfg.Pipeline.CleanupContent = true
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(cfg); err != nil {
		lgr.Printf("[WARN] schema validation failed: %v", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "podscope.db")
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 4
	}

	if cfg.Schedule.Interval == 0 {
		cfg.Schedule.Interval = time.Hour
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "Podscope/1.0"
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = 4
	}

	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = 30 * time.Minute
	}
	if cfg.Download.Concurrency == 0 {
		cfg.Download.Concurrency = 3
	}

	t := &cfg.Transcription
	if t.Backend == "" {
		t.Backend = "local"
	}
	if t.FFmpeg == "" {
		t.FFmpeg = "ffmpeg"
	}
	if t.WhisperBinary == "" {
		t.WhisperBinary = "whisper-cli"
	}
	if t.WhisperModel == "" {
		t.WhisperModel = "base"
	}
	if t.ModelURL == "" {
		t.ModelURL = defaultModelURL
	}
	if t.APIModel == "" {
		t.APIModel = "whisper-1"
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if t.CPUPercent == 0 {
		t.CPUPercent = 80
	}
	if t.Concurrency == 0 {
		t.Concurrency = 1
	}

	l := &cfg.LLM
	if l.Endpoint == "" {
		l.Endpoint = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if l.APIKeyEnv == "" {
		l.APIKeyEnv = "GEMINI_API_KEY"
	}
	if l.Model == "" {
		l.Model = "gemini-2.0-flash"
	}
	if l.Temperature == 0 {
		l.Temperature = 0.3
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 4096
	}
	if l.Timeout == 0 {
		l.Timeout = 5 * time.Minute
	}
	if l.Concurrency == 0 {
		l.Concurrency = 2
	}
	if l.Chunk.Capacity == 0 {
		l.Chunk.Capacity = 24000
	}
	if l.Chunk.Window == 0 {
		l.Chunk.Window = 8000
	}
	if l.Chunk.Overlap == 0 {
		l.Chunk.Overlap = 400
	}

	p := &cfg.Pipeline
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = 2 * time.Second
	}
	if p.RetryMaxDelay == 0 {
		p.RetryMaxDelay = 30 * time.Second
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.Chunk.Window > cfg.LLM.Chunk.Capacity {
		return fmt.Errorf("llm.chunk.window (%d) must not exceed llm.chunk.capacity (%d)", cfg.LLM.Chunk.Window, cfg.LLM.Chunk.Capacity)
	}
	if cfg.LLM.Chunk.Overlap < 0 || cfg.LLM.Chunk.Overlap*2 > cfg.LLM.Chunk.Window {
		return fmt.Errorf("llm.chunk.overlap must be between 0 and half of the window")
	}
	if cfg.Transcription.Backend != "local" && cfg.Transcription.Backend != "api" {
		return fmt.Errorf("transcription.backend must be local or api, got %q", cfg.Transcription.Backend)
	}
	if cfg.Transcription.CPUPercent < 1 || cfg.Transcription.CPUPercent > 100 {
		return fmt.Errorf("transcription.cpu_percent must be between 1 and 100")
	}
	if cfg.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("pipeline.retry_attempts must be at least 1")
	}
	for name, n := range map[string]int{"fetch.concurrency": cfg.Fetch.Concurrency, "download.concurrency": cfg.Download.Concurrency,
		"transcription.concurrency": cfg.Transcription.Concurrency, "llm.concurrency": cfg.LLM.Concurrency} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if cfg.Download.MaxSize < 0 {
		return fmt.Errorf("download.max_size must be non-negative")
	}
	return nil
}

// Key returns the configured API key or the value of the api_key_env variable
func (l LLMConfig) Key() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	return os.Getenv(l.APIKeyEnv)
}

// ContentDir is where downloaded content is stored
func (c *Config) ContentDir() string { return filepath.Join(c.DataDir, "content") }

// TextDir is where derived text is stored
func (c *Config) TextDir() string { return filepath.Join(c.DataDir, "text") }

// ModelPath resolves the whisper model, a bare name maps to <data_dir>/models/ggml-<name>.bin
func (c *Config) ModelPath() string {
	m := c.Transcription.WhisperModel
	if c.explicitModel() {
		return m
	}
	return filepath.Join(c.DataDir, "models", "ggml-"+m+".bin")
}

// ModelDownloadURL is where a named model is fetched from. Models given as a path are never downloaded.
func (c *Config) ModelDownloadURL() string {
	if c.explicitModel() || c.Transcription.ModelURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.Transcription.ModelURL, "/") + "/ggml-" + c.Transcription.WhisperModel + ".bin"
}

func (c *Config) explicitModel() bool {
	m := c.Transcription.WhisperModel
	return filepath.Ext(m) == ".bin" || filepath.IsAbs(m)
}

// Set changes a single setting addressed by its dotted yaml path, e.g. llm.model
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	if err := c.checkKey(parts); err != nil {
		return err
	}

	// plain untagged scalar, resolved by the target field type
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	for i := len(parts) - 1; i >= 0; i-- {
		node = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{{Kind: yaml.ScalarNode, Value: parts[i]}, node}}
	}
	if err := node.Decode(c); err != nil {
		return fmt.Errorf("set %s=%q: %w", key, value, err)
	}
	return validate(c)
}

// checkKey makes sure the path addresses a leaf setting
func (c *Config) checkKey(parts []string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	var cur any = tree
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config key %q", strings.Join(parts, "."))
		}
		if cur, ok = m[p]; !ok {
			return fmt.Errorf("unknown config key %q", strings.Join(parts, "."))
		}
	}
	if _, isMap := cur.(map[string]any); isMap {
		return fmt.Errorf("config key %q is a section", strings.Join(parts, "."))
	}
	return nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("make config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
