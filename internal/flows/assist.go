package flows

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/ml"
	"github.com/franckalain/healthwise/internal/prompt"
	"github.com/franckalain/healthwise/internal/schema"
)

// maxTextLen bounds free-text questions and commands.
const maxTextLen = 2000

func requireText(op, field, s string) error {
	if strings.TrimSpace(s) == "" {
		return failure.Validationf(op, "%s must not be blank", field)
	}
	if utf8.RuneCountInString(s) > maxTextLen {
		return failure.Validationf(op, "%s exceeds %d characters", field, maxTextLen)
	}
	return nil
}

// AnswerHealthQueryInput is a chat question.
type AnswerHealthQueryInput struct {
	Query            string `json:"query"`
	HealthConditions string `json:"healthConditions"`
}

// AnswerHealthQueryOutput is the Markdown answer.
type AnswerHealthQueryOutput struct {
	Answer string `json:"answer"`
}

// AnswerHealthQueryOutputSchema is the output contract of AnswerHealthQuery.
var AnswerHealthQueryOutputSchema = schema.Object("Answer to a health question.",
	schema.Required("answer", schema.String("The answer to the health-related question, in Markdown.")),
)

var answerHealthQueryTemplate = prompt.Must("answerHealthQuery", `You are a helpful health assistant. A user with the following health conditions:
{{if .HealthConditions}}{{.HealthConditions}}{{else}}none reported{{end}}
asks this question: {{.Query}}

Give a concise, informative answer that takes their conditions into account. Share general information only, not medical advice. Format the answer as Markdown.`)

// answerSafety relaxes dangerous-content blocking so that frank questions
// about foods and medication interactions get an answer.
var answerSafety = []ml.SafetySetting{
	{Category: ml.HarmCategoryDangerousContent, Threshold: ml.BlockOnlyHigh},
}

// AnswerHealthQuery answers a free-form question in light of the user's conditions.
func (f *Flows) AnswerHealthQuery(ctx context.Context, in AnswerHealthQueryInput) (*AnswerHealthQueryOutput, error) {
	if err := requireText("flows.AnswerHealthQuery", "query", in.Query); err != nil {
		return nil, err
	}
	out, err := run[AnswerHealthQueryOutput](ctx, f, "answerHealthQuery", answerHealthQueryTemplate, in,
		AnswerHealthQueryOutputSchema, answerSafety...)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateAlternativeRecommendationsInput carries free-text profile and product.
type GenerateAlternativeRecommendationsInput struct {
	UserHealthProfile string `json:"userHealthProfile"`
	ProductDetails    string `json:"productDetails"`
}

// GenerateAlternativeRecommendationsOutput lists suggested alternatives.
type GenerateAlternativeRecommendationsOutput struct {
	Recommendations []string `json:"recommendations"`
}

// GenerateAlternativeRecommendationsOutputSchema is the output contract of
// GenerateAlternativeRecommendations.
var GenerateAlternativeRecommendationsOutputSchema = schema.Object("Alternative products.",
	schema.Required("recommendations", schema.ArrayOf(
		"Alternative products compatible with the user's health profile.",
		schema.String("Alternative product recommendation"))),
)

var generateAlternativeRecommendationsTemplate = prompt.Must("generateAlternativeRecommendations", `You are a health and nutrition expert. A user scanned a product and needs 2-3 alternative products that fit their health profile better.

User Health Profile: {{.UserHealthProfile}}
Product Details: {{.ProductDetails}}

Return 2-3 alternative product recommendations as a list.`)

// GenerateAlternativeRecommendations suggests products better suited to the profile.
func (f *Flows) GenerateAlternativeRecommendations(ctx context.Context, in GenerateAlternativeRecommendationsInput) (*GenerateAlternativeRecommendationsOutput, error) {
	const op = "flows.GenerateAlternativeRecommendations"
	if err := requireText(op, "user health profile", in.UserHealthProfile); err != nil {
		return nil, err
	}
	if err := requireText(op, "product details", in.ProductDetails); err != nil {
		return nil, err
	}
	out, err := run[GenerateAlternativeRecommendationsOutput](ctx, f, "generateAlternativeRecommendations",
		generateAlternativeRecommendationsTemplate, in, GenerateAlternativeRecommendationsOutputSchema)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateMotivationalQuoteInput carries the user's conditions, possibly empty.
type GenerateMotivationalQuoteInput struct {
	HealthConditions string `json:"healthConditions"`
}

// GenerateMotivationalQuoteOutput is the quote.
type GenerateMotivationalQuoteOutput struct {
	Quote string `json:"quote"`
}

// GenerateMotivationalQuoteOutputSchema is the output contract of
// GenerateMotivationalQuote.
var GenerateMotivationalQuoteOutputSchema = schema.Object("A motivational quote.",
	schema.Required("quote", schema.String("The motivational quote.")),
)

var generateMotivationalQuoteTemplate = prompt.Must("generateMotivationalQuote", `You write inspiring, motivational quotes about health and wellness.
{{if .HealthConditions}}The user has the following health conditions: {{.HealthConditions}}.
{{end}}
Write one short, positive and encouraging quote about their journey towards better health. Do not give medical advice. Keep it to at most two sentences.`)

// GenerateMotivationalQuote writes one encouraging quote.
func (f *Flows) GenerateMotivationalQuote(ctx context.Context, in GenerateMotivationalQuoteInput) (*GenerateMotivationalQuoteOutput, error) {
	if utf8.RuneCountInString(in.HealthConditions) > maxTextLen {
		return nil, failure.Validationf("flows.GenerateMotivationalQuote", "health conditions exceed %d characters", maxTextLen)
	}
	out, err := run[GenerateMotivationalQuoteOutput](ctx, f, "generateMotivationalQuote",
		generateMotivationalQuoteTemplate, in, GenerateMotivationalQuoteOutputSchema)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessVoiceCommandInput is a transcribed voice command. ProductDetails is
// empty when nothing has been scanned yet.
type ProcessVoiceCommandInput struct {
	VoiceCommand   string `json:"voiceCommand"`
	HealthProfile  string `json:"healthProfile"`
	ProductDetails string `json:"productDetails,omitempty"`
}

// ProcessVoiceCommandOutput is the conversational reply.
type ProcessVoiceCommandOutput struct {
	Response string `json:"response"`
}

// ProcessVoiceCommandOutputSchema is the output contract of ProcessVoiceCommand.
var ProcessVoiceCommandOutputSchema = schema.Object("Reply to a voice command.",
	schema.Required("response", schema.String("The conversational reply to the voice command.")),
)

var processVoiceCommandTemplate = prompt.Must("processVoiceCommand", `You are a helpful assistant that answers voice commands about product safety for one user.

User Health Profile: {{.HealthProfile}}
Product Details: {{if .ProductDetails}}{{.ProductDetails}}{{else}}none, no product has been scanned yet{{end}}
Voice Command: {{.VoiceCommand}}

If the command asks about product safety, compare the product details with the health profile and explain briefly whether the product is safe, risky or unsafe for the user. If there are no product details, ask the user to scan a product first. Answer in a conversational tone.`)

// ProcessVoiceCommand answers a voice command about the current product.
func (f *Flows) ProcessVoiceCommand(ctx context.Context, in ProcessVoiceCommandInput) (*ProcessVoiceCommandOutput, error) {
	if err := requireText("flows.ProcessVoiceCommand", "voice command", in.VoiceCommand); err != nil {
		return nil, err
	}
	out, err := run[ProcessVoiceCommandOutput](ctx, f, "processVoiceCommand",
		processVoiceCommandTemplate, in, ProcessVoiceCommandOutputSchema)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
