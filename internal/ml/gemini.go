package ml

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/schema"
)

// GeminiModel implements Model against the Gemini Developer API using an
// API key instead of Google Cloud credentials.
type GeminiModel struct {
	config config.MLConfig
	client *genai.Client
}

// GeminiModelFactory implements ModelFactory for the Gemini API.
type GeminiModelFactory struct {
	config config.MLConfig
}

// NewGeminiModelFactory creates a new Gemini API model factory.
func NewGeminiModelFactory(cfg config.MLConfig) *GeminiModelFactory {
	return &GeminiModelFactory{config: cfg}
}

// CreateModel creates a new Gemini API model instance.
func (f *GeminiModelFactory) CreateModel() (Model, error) {
	return &GeminiModel{config: f.config}, nil
}

// Load creates the API client.
func (m *GeminiModel) Load(ctx context.Context) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  m.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}
	m.client = client
	return nil
}

// Generate performs one GenerateContent call.
func (m *GeminiModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	if m.client == nil {
		return nil, fmt.Errorf("model not loaded")
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: structuredMimeType,
		ResponseSchema:   toGenAISchema(req.Schema),
	}
	for _, s := range req.Safety {
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}

	parts := make([]*genai.Part, 0, len(req.Prompt.Parts))
	for _, p := range req.Prompt.Parts {
		if p.Media != nil {
			parts = append(parts, genai.NewPartFromBytes(p.Media.Data, p.Media.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := m.client.Models.GenerateContent(ctx, m.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no response generated")
	}

	return &Response{
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}, nil
}

// Close is a no-op; the GenAI client holds no resources that need releasing.
func (m *GeminiModel) Close() error {
	return nil
}

func toGenAISchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		// schema.Type values are the API's own type names.
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenAISchema(s.Items),
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, child := range s.Properties {
			out.Properties[name] = toGenAISchema(child)
		}
	}
	return out
}
