package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/germanamz/director/pkg/generation"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/operation"
	"github.com/germanamz/director/pkg/providers/gemini"
	"github.com/germanamz/director/pkg/tools/mcpclient"
	"gopkg.in/yaml.v3"
)

// Default model names for the conversational stages.
const (
	DefaultStageModel    = "gemini-2.5-pro"
	DefaultDelegateModel = "gemini-2.5-flash"
	DefaultLocation      = "global"
	DefaultMaxIterations = 20
)

// Config is the top-level engine configuration.
type Config struct {
	Gemini     GeminiConfig             `yaml:"gemini"`
	GenAI      GenAIConfig              `yaml:"genai"`
	Storage    StorageConfig            `yaml:"storage"`
	Generation GenerationConfig         `yaml:"generation"`
	PromptsDir string                   `yaml:"prompts_dir"`
	MCPServers []mcpclient.ServerConfig `yaml:"mcp_servers"`
	Agents     AgentsConfig             `yaml:"agents"`
	Web        WebConfig                `yaml:"web"`
}

// GeminiConfig describes the chat model used by the stages and the tool
// agents.
type GeminiConfig struct {
	Kind      string          `yaml:"kind"`
	BaseURL   string          `yaml:"base_url"`
	APIKey    string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model     string          `yaml:"model"`
	Stages    StageModels     `yaml:"stages"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// StageModels overrides the model per stage. Empty entries use
// GeminiConfig.Model.
type StageModels struct {
	Story      string `yaml:"story"`
	Storyboard string `yaml:"storyboard"`
	Video      string `yaml:"video"`
	Delegate   string `yaml:"delegate"`
}

// RateLimitConfig controls retries on 429 responses.
type RateLimitConfig struct {
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// GenAIConfig selects the backend of the image and video models.
type GenAIConfig struct {
	Backend    string `yaml:"backend"` // "vertex" (default) or "gemini".
	Project    string `yaml:"project"`
	Location   string `yaml:"location"`
	APIKey     string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	ImageModel string `yaml:"image_model"`
	VideoModel string `yaml:"video_model"`
}

// StorageConfig holds the blob store settings.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
	// VideoPrefix is the gs:// folder videos are written under. Defaults to
	// the bucket root.
	VideoPrefix string `yaml:"video_prefix"`
}

// GenerationConfig tunes the generation adapters.
type GenerationConfig struct {
	ImageAttempts    int    `yaml:"image_attempts"`
	PollInterval     string `yaml:"poll_interval"`
	PersonGeneration string `yaml:"person_generation"`
	AspectRatio      string `yaml:"aspect_ratio"`
}

// AgentsConfig holds stage agent settings.
type AgentsConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	StageTimeout  string `yaml:"stage_timeout"`
}

// WebConfig toggles the web content tools of the storyboard stage.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig reads a YAML file and returns a Config with defaults applied.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so keys can live in the environment or a .env file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig expands environment variables in data and decodes it.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg.withDefaults(), nil
}

// FromEnv builds a Config from the process environment only. It reads the
// same variables as the Google client libraries.
func FromEnv() Config {
	cfg := Config{
		Gemini: GeminiConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
		GenAI: GenAIConfig{
			Project:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Location: os.Getenv("GOOGLE_CLOUD_LOCATION"),
			APIKey:   os.Getenv("GOOGLE_API_KEY"),
		},
		Storage: StorageConfig{Bucket: os.Getenv("AI_ASSETS_BUCKET")},
	}

	if v := os.Getenv("GOOGLE_GENAI_USE_VERTEXAI"); v == "false" || v == "False" || v == "0" {
		cfg.GenAI.Backend = "gemini"
	}

	return cfg.withDefaults()
}

// withDefaults fills every unset field that has a default.
func (c Config) withDefaults() Config {
	// Without an API key the stages share the genai client credentials.
	if c.Gemini.Kind == "" {
		c.Gemini.Kind = KindVertex
		if c.Gemini.APIKey != "" {
			c.Gemini.Kind = KindGemini
		}
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = gemini.DefaultBaseURL
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultStageModel
	}
	if c.Gemini.Stages.Delegate == "" {
		c.Gemini.Stages.Delegate = DefaultDelegateModel
	}

	if c.GenAI.Backend == "" {
		c.GenAI.Backend = "vertex"
	}
	if c.GenAI.Location == "" {
		c.GenAI.Location = DefaultLocation
	}
	if c.GenAI.ImageModel == "" {
		c.GenAI.ImageModel = generation.DefaultImageModel
	}
	if c.GenAI.VideoModel == "" {
		c.GenAI.VideoModel = generation.DefaultVideoModel
	}
	if c.GenAI.APIKey == "" && c.GenAI.Backend == "gemini" {
		c.GenAI.APIKey = c.Gemini.APIKey
	}

	if c.Storage.Bucket == "" && c.GenAI.Project != "" {
		c.Storage.Bucket = c.GenAI.Project + "-adk-video-agent-logs-data"
	}
	if c.Storage.VideoPrefix == "" && c.Storage.Bucket != "" {
		c.Storage.VideoPrefix = "gs://" + c.Storage.Bucket
	}

	if c.Generation.ImageAttempts == 0 {
		c.Generation.ImageAttempts = generation.DefaultImageAttempts
	}
	if c.Generation.PollInterval == "" {
		c.Generation.PollInterval = operation.DefaultInterval.String()
	}
	if c.Generation.PersonGeneration == "" {
		c.Generation.PersonGeneration = generation.DefaultPersonGeneration
	}

	if c.Agents.MaxIterations == 0 {
		c.Agents.MaxIterations = DefaultMaxIterations
	}

	return c
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("engine: config: storage.bucket is required (or set genai.project)")
	}

	switch c.GenAI.Backend {
	case "vertex", "vertexai":
		if c.GenAI.Project == "" {
			return fmt.Errorf("engine: config: genai.project is required for the vertex backend")
		}
	case "gemini":
		if c.GenAI.APIKey == "" {
			return fmt.Errorf("engine: config: genai.api_key is required for the gemini backend")
		}
	default:
		return fmt.Errorf("engine: config: genai.backend %q: want vertex or gemini", c.GenAI.Backend)
	}

	if c.Gemini.Kind == KindGemini && c.Gemini.APIKey == "" {
		return fmt.Errorf("engine: config: gemini.api_key is required for the gemini provider")
	}

	if c.Generation.ImageAttempts < 0 {
		return fmt.Errorf("engine: config: generation.image_attempts must not be negative")
	}

	if _, err := c.pollInterval(); err != nil {
		return err
	}
	if _, err := c.stageTimeout(); err != nil {
		return err
	}
	if _, err := media.ParseAspectRatio(c.Generation.AspectRatio); err != nil {
		return fmt.Errorf("engine: config: generation.aspect_ratio: %w", err)
	}

	mcpNames := make(map[string]struct{}, len(c.MCPServers))
	for _, m := range c.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mcp server name is required")
		}
		if m.Command == "" && m.URL == "" {
			return fmt.Errorf("engine: config: mcp server %q: command or url is required", m.Name)
		}
		if _, dup := mcpNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate mcp server name %q", m.Name)
		}
		mcpNames[m.Name] = struct{}{}
	}

	return nil
}

func (c Config) pollInterval() (time.Duration, error) {
	if c.Generation.PollInterval == "" {
		return operation.DefaultInterval, nil
	}

	d, err := time.ParseDuration(c.Generation.PollInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("engine: config: invalid generation.poll_interval %q", c.Generation.PollInterval)
	}

	return d, nil
}

func (c Config) stageTimeout() (time.Duration, error) {
	if c.Agents.StageTimeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Agents.StageTimeout)
	if err != nil {
		return 0, fmt.Errorf("engine: config: invalid agents.stage_timeout %q: %w", c.Agents.StageTimeout, err)
	}

	return d, nil
}

// stageModel returns the model configured for a stage, falling back to the
// shared model.
func (c Config) stageModel(override string) string {
	if override != "" {
		return override
	}
	return c.Gemini.Model
}
