package flows

import (
	"context"
	"strconv"
	"strings"

	"github.com/franckalain/healthwise/internal/failure"
	"github.com/franckalain/healthwise/internal/models"
	"github.com/franckalain/healthwise/internal/prompt"
	"github.com/franckalain/healthwise/internal/schema"
)

// AnalyzeProductInput is the manual-entry analysis request.
type AnalyzeProductInput struct {
	HealthProfile  models.HealthProfile  `json:"healthProfile"`
	ProductDetails models.ProductDetails `json:"productDetails"`
}

// Validate checks the input contract.
func (in AnalyzeProductInput) Validate() error {
	const op = "flows.AnalyzeProduct"
	if err := validateProfile(op, in.HealthProfile); err != nil {
		return err
	}
	d := in.ProductDetails
	if strings.TrimSpace(d.Ingredients) == "" {
		return failure.Validationf(op, "product ingredients are required")
	}
	if d.Calories < 0 || d.Sugar < 0 || d.Sodium < 0 || d.Fat < 0 {
		return failure.Validationf(op, "nutrient values must not be negative")
	}
	return nil
}

// AnalyzeProductImageInput is the camera/upload analysis request.
type AnalyzeProductImageInput struct {
	HealthProfile models.HealthProfile `json:"healthProfile"`
	Image         *models.ProductImage `json:"image"`
}

// Validate checks the input contract.
func (in AnalyzeProductImageInput) Validate() error {
	const op = "flows.AnalyzeProductImage"
	if err := validateProfile(op, in.HealthProfile); err != nil {
		return err
	}
	if in.Image == nil || len(in.Image.Data) == 0 {
		return failure.Validationf(op, "a product image is required")
	}
	if !strings.HasPrefix(in.Image.MIMEType, "image/") {
		return failure.Validationf(op, "unsupported media type %q", in.Image.MIMEType)
	}
	return nil
}

func validateProfile(op string, p models.HealthProfile) error {
	if !p.Complete() {
		return failure.Validationf(op, "health profile is incomplete: name and medical conditions are required")
	}
	if p.Age < 0 {
		return failure.Validationf(op, "age must not be negative")
	}
	if !p.Gender.Valid() {
		return failure.Validationf(op, "unknown gender %q", p.Gender)
	}
	return nil
}

// profileView is the profile as the templates see it.
type profileView struct {
	Name       string
	Age        string
	Gender     string
	Conditions []string
}

func viewProfile(p models.HealthProfile) profileView {
	v := profileView{
		Name:       p.Name,
		Age:        "not provided",
		Gender:     "not provided",
		Conditions: p.Conditions(),
	}
	if p.Age > 0 {
		v.Age = strconv.Itoa(p.Age)
	}
	if p.Gender != models.GenderUnset {
		v.Gender = string(p.Gender)
	}
	return v
}

const profileBlock = `Health Profile:
Name: {{.Profile.Name}}
Age: {{.Profile.Age}}
Gender: {{.Profile.Gender}}
Medical Conditions: {{range $i, $c := .Profile.Conditions}}{{if $i}}, {{end}}{{$c}}{{end}}
`

var analyzeProductTemplate = prompt.Must("analyzeProduct", `You are a health expert. Judge whether a food product is safe for one person, based on its ingredients and nutrition facts and on their health profile.

`+profileBlock+`
Product Details:
Ingredients: {{.Product.Ingredients}}
Calories: {{.Product.Calories}} kcal
Sugar: {{.Product.Sugar}}g
Sodium: {{.Product.Sodium}}mg
Fat: {{.Product.Fat}}g

Classify the product as "safe", "risky" or "unsafe" for this person and set "safe" to true only when the status is "safe". Give a short explanation that names the ingredients or nutrients that drive the verdict. Suggest 2-3 alternative products that suit this profile better.`)

var analyzeProductImageTemplate = prompt.Must("analyzeProductImage", `You are a health expert. Identify the food product in the photo, read its nutrition facts, and judge whether it is safe for one person based on their health profile.

`+profileBlock+`
Product Image: {{media .Image}}

Name the product. Report calories (kcal), sugar (g), sodium (mg) and fat (g) per serving as read from the label, estimating typical values when the label is not visible. Classify the product as "safe", "risky" or "unsafe" for this person and set "safe" to true only when the status is "safe". Give a short explanation and suggest 2-3 alternative products that suit this profile better.`)

func verdictFields() []schema.Field {
	return []schema.Field{
		schema.Required("safe", schema.Boolean("Whether the product is safe for the user. True only when status is safe.")),
		schema.Required("status", schema.Enum("Color-coded safety status.", "safe", "risky", "unsafe")),
		schema.Required("explanation", schema.String("Short explanation of the safety assessment.")),
		schema.Required("recommendations", schema.ArrayOf("2-3 alternative products with better compatibility.",
			schema.String("Alternative product"))),
	}
}

// AnalyzeProductOutputSchema is the output contract of AnalyzeProduct.
var AnalyzeProductOutputSchema = schema.Object("Safety assessment of a product.", verdictFields()...)

// AnalyzeProductImageOutputSchema is the output contract of AnalyzeProductImage.
var AnalyzeProductImageOutputSchema = schema.Object("Identification and safety assessment of a photographed product.",
	append([]schema.Field{
		schema.Required("productName", schema.String("Name of the identified product.")),
		schema.Required("details", schema.Object("Nutrition facts per serving.",
			schema.Required("calories", schema.Number("Calories per serving (kcal).")),
			schema.Required("sugar", schema.Number("Sugar per serving (g).")),
			schema.Required("sodium", schema.Number("Sodium per serving (mg).")),
			schema.Required("fat", schema.Number("Fat per serving (g).")),
		)),
	}, verdictFields()...)...,
)

// AnalyzeProduct judges manually entered product details against a profile.
func (f *Flows) AnalyzeProduct(ctx context.Context, in AnalyzeProductInput) (*models.AnalysisResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	data := struct {
		Profile profileView
		Product models.ProductDetails
	}{viewProfile(in.HealthProfile), in.ProductDetails}

	out, err := run[models.AnalysisResult](ctx, f, "analyzeProduct", analyzeProductTemplate, data, AnalyzeProductOutputSchema)
	if err != nil {
		return nil, err
	}
	return checkVerdict("flows.AnalyzeProduct", out)
}

// AnalyzeProductImage identifies a photographed product and judges it
// against a profile.
func (f *Flows) AnalyzeProductImage(ctx context.Context, in AnalyzeProductImageInput) (*models.AnalysisResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	data := struct {
		Profile profileView
		Image   *models.ProductImage
	}{viewProfile(in.HealthProfile), in.Image}

	out, err := run[models.AnalysisResult](ctx, f, "analyzeProductImage", analyzeProductImageTemplate, data, AnalyzeProductImageOutputSchema)
	if err != nil {
		return nil, err
	}
	return checkVerdict("flows.AnalyzeProductImage", out)
}

// checkVerdict rejects output whose safe flag contradicts its status.
func checkVerdict(op string, out models.AnalysisResult) (*models.AnalysisResult, error) {
	if err := out.CheckConsistency(); err != nil {
		return nil, failure.Generationf(op, err, "inconsistent verdict")
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return &out, nil
}
