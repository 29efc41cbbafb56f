package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/providers/gemini"
	"github.com/germanamz/director/pkg/providers/vertex"
)

// Provider kinds built into the engine.
const (
	KindGemini = "gemini"
	KindVertex = "vertex"
)

// ProviderConfig is what a factory gets to build the Completer of one model.
type ProviderConfig struct {
	GeminiConfig
	// Model is the model of the stage being built.
	Model string
	// GenAI is the engine's genai Models service.
	GenAI vertex.Models
}

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories[KindGemini] = newGemini
		factories[KindVertex] = newVertex
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newGemini(cfg ProviderConfig) (modeladapter.Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gemini.DefaultBaseURL
	}

	return gemini.New(baseURL, cfg.APIKey, cfg.Model), nil
}

func newVertex(cfg ProviderConfig) (modeladapter.Completer, error) {
	if cfg.GenAI == nil {
		return nil, fmt.Errorf("vertex: genai client is required")
	}

	return vertex.New(cfg.GenAI, cfg.Model), nil
}

// buildCompleter creates a Completer for model using the registered factory
// for cfg.Kind. The completer is wrapped with rate-limit retries.
func buildCompleter(cfg GeminiConfig, model string, models vertex.Models) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(ProviderConfig{GeminiConfig: cfg, Model: model, GenAI: models})
	if err != nil {
		return nil, fmt.Errorf("engine: model %q: %w", model, err)
	}

	rl := cfg.RateLimit

	var baseDelay time.Duration
	if rl.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(rl.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("engine: invalid rate_limit.base_delay %q: %w", rl.BaseDelay, err)
		}
	}

	if rl.MaxRetries < 0 {
		return c, nil
	}

	return modeladapter.NewRetryCompleter(c, modeladapter.RetryOpts{
		MaxRetries: uint64(rl.MaxRetries), //nolint:gosec // checked non-negative above
		BaseDelay:  baseDelay,
	}), nil
}
