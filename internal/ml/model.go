package ml

import (
	"context"
	"fmt"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/prompt"
	"github.com/franckalain/healthwise/internal/schema"
)

// HarmCategory names a content-safety category of the model provider.
type HarmCategory string

// HarmThreshold names the blocking threshold applied to a category.
type HarmThreshold string

const (
	HarmCategoryDangerousContent HarmCategory  = "HARM_CATEGORY_DANGEROUS_CONTENT"
	BlockOnlyHigh                HarmThreshold = "BLOCK_ONLY_HIGH"
)

// SafetySetting is a per-call content-safety directive.
type SafetySetting struct {
	Category  HarmCategory
	Threshold HarmThreshold
}

// Request is one generation call.
type Request struct {
	// Name identifies the flow in logs.
	Name   string
	Prompt prompt.Prompt
	// Schema is the declared output shape; the response must conform to it.
	Schema *schema.Schema
	Safety []SafetySetting
}

// Response is the raw text the model produced.
type Response struct {
	Text         string
	FinishReason string
}

// Model is a generative model backend.
type Model interface {
	// Load initializes the model with its configuration
	Load(ctx context.Context) error
	// Generate performs exactly one round trip to the model.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Close releases the client.
	Close() error
}

// ModelFactory creates a new model instance based on configuration
type ModelFactory interface {
	// CreateModel creates a new model instance
	CreateModel() (Model, error)
}

// NewModel creates a new model instance based on the model type
func NewModel(cfg config.MLConfig) (Model, error) {
	var factory ModelFactory

	switch cfg.Type {
	case "google":
		factory = NewGoogleModelFactory(cfg)
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini model requires an API key")
		}
		factory = NewGeminiModelFactory(cfg)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
	return factory.CreateModel()
}
