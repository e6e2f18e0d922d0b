package ml

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/schema"
)

const structuredMimeType = "application/json"

// GoogleModel implements the Model interface for Google's Vertex AI
type GoogleModel struct {
	config config.MLConfig
	client *genai.Client
}

// GoogleModelFactory implements ModelFactory for Google models
type GoogleModelFactory struct {
	config config.MLConfig
}

// NewGoogleModelFactory creates a new Google model factory
func NewGoogleModelFactory(cfg config.MLConfig) *GoogleModelFactory {
	return &GoogleModelFactory{config: cfg}
}

// CreateModel creates a new Google model instance
func (f *GoogleModelFactory) CreateModel() (Model, error) {
	if f.config.ProjectID == "" {
		return nil, fmt.Errorf("google model requires a project id")
	}
	return &GoogleModel{
		config: f.config,
	}, nil
}

// Load initializes the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	return nil
}

// Generate sends the prompt, with its media inline, and the output schema
// to Vertex AI.
func (m *GoogleModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	if m.client == nil {
		return nil, fmt.Errorf("model not loaded")
	}

	// GenerativeModel is a cheap handle; per-call settings live on it.
	model := m.client.GenerativeModel(m.config.Model)
	model.ResponseMIMEType = structuredMimeType
	if req.Schema != nil {
		model.ResponseSchema = toVertexSchema(req.Schema)
	}
	for _, s := range req.Safety {
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  vertexHarmCategory(s.Category),
			Threshold: vertexHarmThreshold(s.Threshold),
		})
	}

	parts := make([]genai.Part, 0, len(req.Prompt.Parts))
	for _, p := range req.Prompt.Parts {
		if p.Media != nil {
			parts = append(parts, genai.Blob{MIMEType: p.Media.MIMEType, Data: p.Media.Data})
			continue
		}
		parts = append(parts, genai.Text(p.Text))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to call ai: %w", err)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			return nil, fmt.Errorf("no response generated: prompt blocked (%v)", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("no response generated")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("no content in response (finish reason %v)", candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return &Response{
		Text:         text.String(),
		FinishReason: fmt.Sprint(candidate.FinishReason),
	}, nil
}

// Close closes the Vertex AI client.
func (m *GoogleModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func toVertexSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        vertexType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Nullable:    s.Nullable,
		Items:       toVertexSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, child := range s.Properties {
			out.Properties[name] = toVertexSchema(child)
		}
	}
	return out
}

func vertexType(t schema.Type) genai.Type {
	switch t {
	case schema.TypeObject:
		return genai.TypeObject
	case schema.TypeArray:
		return genai.TypeArray
	case schema.TypeString:
		return genai.TypeString
	case schema.TypeNumber:
		return genai.TypeNumber
	case schema.TypeInteger:
		return genai.TypeInteger
	case schema.TypeBoolean:
		return genai.TypeBoolean
	}
	return genai.TypeUnspecified
}

func vertexHarmCategory(c HarmCategory) genai.HarmCategory {
	switch c {
	case HarmCategoryDangerousContent:
		return genai.HarmCategoryDangerousContent
	}
	return genai.HarmCategoryUnspecified
}

func vertexHarmThreshold(t HarmThreshold) genai.HarmBlockThreshold {
	switch t {
	case BlockOnlyHigh:
		return genai.HarmBlockOnlyHigh
	}
	return genai.HarmBlockUnspecified
}
