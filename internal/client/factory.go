package client

import (
	"context"
	"fmt"

	"krusty/internal/config"
)

// New constructs the provider client named by cfg.API.ActiveProvider.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.API.ActiveProvider {
	case "gemini", "":
		return NewGeminiClient(ctx, cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q (expected gemini or ollama)", cfg.API.ActiveProvider)
	}
}
