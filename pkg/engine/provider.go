package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/providers/anthropic"
	"github.com/germanamz/silk/pkg/providers/echo"
	"github.com/germanamz/silk/pkg/providers/gemini"
	"github.com/germanamz/silk/pkg/providers/grok"
	"github.com/germanamz/silk/pkg/providers/ollama"
	"github.com/germanamz/silk/pkg/providers/openai"
)

// ProviderFactory creates a Provider from a ProviderConfig.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (modeladapter.Provider, error)

// Default model per provider kind, used when ProviderConfig.Model is empty.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-1.5-flash",
	"grok":      "grok-3-mini",
	"ollama":    "llama3.1",
}

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["anthropic"] = newAnthropic
		factories["openai"] = newOpenAI
		factories["gemini"] = newGemini
		factories["grok"] = newGrok
		factories["ollama"] = newOllama
		factories["echo"] = newEcho
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

func modelFor(cfg ProviderConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return defaultModels[cfg.Kind]
}

func newAnthropic(_ context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	return anthropic.New(anthropic.Options{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      modelFor(cfg),
		MaxTokens:  cfg.MaxTokens,
		BufferSize: cfg.StreamBuffer,
	}), nil
}

func newOpenAI(_ context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	return openai.New(openai.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       modelFor(cfg),
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		BufferSize:  cfg.StreamBuffer,
	}), nil
}

func newGemini(ctx context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	return gemini.New(ctx, gemini.Options{
		APIKey:     cfg.APIKey,
		Model:      modelFor(cfg),
		Endpoint:   cfg.BaseURL,
		MaxTokens:  cfg.MaxTokens,
		BufferSize: cfg.StreamBuffer,
	})
}

func newGrok(_ context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	a := grok.New(cfg.APIKey, nil)
	if cfg.BaseURL != "" {
		a.BaseURL = cfg.BaseURL
	}
	a.Name = modelFor(cfg)
	a.MaxTokens = cfg.MaxTokens
	a.Temperature = cfg.Temperature
	a.BufferSize = cfg.StreamBuffer

	return a, nil
}

func newOllama(_ context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	return ollama.New(ollama.Options{
		Host:        cfg.BaseURL,
		Model:       modelFor(cfg),
		Temperature: cfg.Temperature,
		BufferSize:  cfg.StreamBuffer,
	})
}

func newEcho(_ context.Context, cfg ProviderConfig) (modeladapter.Provider, error) {
	return echo.New(cfg.StreamBuffer), nil
}

// buildProvider creates a Provider from a ProviderConfig using the registered
// factory for its Kind. If rate limiting is configured, the provider is wrapped
// with a RateLimited provider. The unwrapped provider is returned as well so
// the caller can release it.
func buildProvider(ctx context.Context, cfg ProviderConfig) (modeladapter.Provider, modeladapter.Provider, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	inner, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: provider %q: %w", cfg.Kind, err)
	}

	rl := cfg.RateLimit
	if rl.RPM <= 0 && rl.MaxRetries <= 0 && rl.BaseDelay == "" {
		return inner, inner, nil
	}

	var baseDelay time.Duration
	if rl.BaseDelay != "" {
		var parseErr error
		baseDelay, parseErr = time.ParseDuration(rl.BaseDelay)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", cfg.Kind, rl.BaseDelay, parseErr)
		}
	}

	return modeladapter.NewRateLimited(inner, modeladapter.RateLimitOpts{
		RPM:        rl.RPM,
		Burst:      rl.Burst,
		MaxRetries: rl.MaxRetries,
		BaseDelay:  baseDelay,
	}), inner, nil
}
