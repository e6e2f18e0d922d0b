package ml

import (
	"testing"

	vertex "cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/franckalain/healthwise/internal/schema"
)

func verdict() *schema.Schema {
	return schema.Object("verdict",
		schema.Required("status", schema.Enum("Safety status.", "safe", "risky", "unsafe")),
		schema.Required("recommendations", schema.ArrayOf("", schema.String("Alternative product"))),
		schema.Optional("score", schema.Integer("")),
	)
}

func TestToVertexSchema(t *testing.T) {
	got := toVertexSchema(verdict())
	require.NotNil(t, got)

	assert.Equal(t, vertex.TypeObject, got.Type)
	assert.Equal(t, []string{"status", "recommendations"}, got.Required)
	require.Contains(t, got.Properties, "status")
	assert.Equal(t, vertex.TypeString, got.Properties["status"].Type)
	assert.Equal(t, []string{"safe", "risky", "unsafe"}, got.Properties["status"].Enum)
	assert.Equal(t, vertex.TypeArray, got.Properties["recommendations"].Type)
	assert.Equal(t, vertex.TypeString, got.Properties["recommendations"].Items.Type)
	assert.Equal(t, vertex.TypeInteger, got.Properties["score"].Type)
	assert.Nil(t, toVertexSchema(nil))
}

func TestToGenAISchema(t *testing.T) {
	s := verdict()
	s.Properties["score"].Nullable = true
	got := toGenAISchema(s)
	require.NotNil(t, got)

	assert.Equal(t, genai.TypeObject, got.Type)
	assert.Equal(t, genai.TypeArray, got.Properties["recommendations"].Type)
	assert.Equal(t, "Alternative product", got.Properties["recommendations"].Items.Description)
	require.NotNil(t, got.Properties["score"].Nullable)
	assert.True(t, *got.Properties["score"].Nullable)
	assert.Nil(t, got.Properties["status"].Nullable)
}

func TestSafetyMapping(t *testing.T) {
	assert.Equal(t, vertex.HarmCategoryDangerousContent, vertexHarmCategory(HarmCategoryDangerousContent))
	assert.Equal(t, vertex.HarmBlockOnlyHigh, vertexHarmThreshold(BlockOnlyHigh))
	assert.Equal(t, genai.HarmCategoryDangerousContent, genai.HarmCategory(HarmCategoryDangerousContent))
	assert.Equal(t, genai.HarmBlockThresholdBlockOnlyHigh, genai.HarmBlockThreshold(BlockOnlyHigh))
}
