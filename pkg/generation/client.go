package generation

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"google.golang.org/genai"
)

// ClientConfig selects the genai backend.
type ClientConfig struct {
	// Backend is "vertex" or "gemini".
	Backend  string
	Project  string
	Location string
	APIKey   string
}

// NewClient creates a genai client for the configured backend.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	cc := &genai.ClientConfig{}

	switch strings.ToLower(cfg.Backend) {
	case "", "vertex", "vertexai":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	case "gemini":
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("generation: unknown backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("generation: genai client: %w", err)
	}

	return client, nil
}

// guessMIMEType returns the media type implied by a URI's extension, or "".
func guessMIMEType(uri string) string {
	ext := strings.ToLower(path.Ext(uri))
	switch ext {
	case "":
		return ""
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	mt, _, _ := strings.Cut(mime.TypeByExtension(ext), ";")
	return mt
}
