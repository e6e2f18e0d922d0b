package ml_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/ml"
	"github.com/franckalain/healthwise/internal/models"
)

// TestGeminiLive talks to the hosted model and only runs when an API key
// is present.
func TestGeminiLive(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	if testing.Short() {
		t.Skip("skipping live model test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	model, err := ml.NewModel(config.MLConfig{Type: "gemini", APIKey: apiKey, Model: config.DefaultModel})
	require.NoError(t, err)
	require.NoError(t, model.Load(ctx))
	defer model.Close()

	fl := flows.New(ml.NewInvoker(model, config.DefaultTimeout))
	res, err := fl.AnalyzeProduct(ctx, flows.AnalyzeProductInput{
		HealthProfile: models.HealthProfile{Name: "Jane", Age: 40, MedicalConditions: "type 2 diabetes"},
		ProductDetails: models.ProductDetails{
			Ingredients: "Carbonated water, high fructose corn syrup, caramel color",
			Calories:    150,
			Sugar:       39,
			Sodium:      45,
		},
	})
	require.NoError(t, err)
	assert.NoError(t, res.CheckConsistency())
	assert.NotEmpty(t, res.Explanation)
	assert.NotEqual(t, models.StatusSafe, res.Status)
}
