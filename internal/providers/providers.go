package providers

import (
	"context"
)

// Config represents the configuration for a single vision request
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	// Images are PNG encoded.
	Images [][]byte
}

// Provider defines the interface for a vision-capable LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}
