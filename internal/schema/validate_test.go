package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdictSchema() *Schema {
	return Object("verdict",
		Required("safe", Boolean("")),
		Required("status", Enum("", "safe", "risky", "unsafe")),
		Required("recommendations", ArrayOf("", String(""))),
		Optional("score", Integer("")),
		Optional("details", Object("",
			Required("calories", Number("")),
		)),
	)
}

func TestObjectRequiredOrder(t *testing.T) {
	s := verdictSchema()
	assert.Equal(t, []string{"safe", "status", "recommendations"}, s.Required)
	assert.Len(t, s.Properties, 5)
}

func TestValidateJSON(t *testing.T) {
	s := verdictSchema()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:  "valid minimal",
			input: `{"safe": false, "status": "risky", "recommendations": ["a", "b"]}`,
		},
		{
			name:  "valid with optionals",
			input: `{"safe": true, "status": "safe", "recommendations": [], "score": 3, "details": {"calories": 12.5}}`,
		},
		{
			name:  "unknown properties are ignored",
			input: `{"safe": true, "status": "safe", "recommendations": [], "extra": 1}`,
		},
		{
			name:    "missing required",
			input:   `{"safe": true, "recommendations": []}`,
			wantErr: `$: missing required property "status"`,
		},
		{
			name:    "enum violation",
			input:   `{"safe": true, "status": "fine", "recommendations": []}`,
			wantErr: `$.status: value "fine" not in [safe risky unsafe]`,
		},
		{
			name:    "wrong array element",
			input:   `{"safe": true, "status": "safe", "recommendations": ["a", 2]}`,
			wantErr: `$.recommendations[1]: expected string, got number`,
		},
		{
			name:    "integer with fraction",
			input:   `{"safe": true, "status": "safe", "recommendations": [], "score": 1.5}`,
			wantErr: `$.score: expected integer, got 1.5`,
		},
		{
			name:    "nested missing",
			input:   `{"safe": true, "status": "safe", "recommendations": [], "details": {}}`,
			wantErr: `$.details: missing required property "calories"`,
		},
		{
			name:    "null not allowed",
			input:   `{"safe": null, "status": "safe", "recommendations": []}`,
			wantErr: `$.safe: expected BOOLEAN, got null`,
		},
		{
			name:    "top level array",
			input:   `[]`,
			wantErr: `$: expected object, got array`,
		},
		{
			name:    "not json",
			input:   `Sure! Here is your answer`,
			wantErr: `$: invalid JSON`,
		},
		{
			name:    "trailing data",
			input:   `{"safe": true, "status": "safe", "recommendations": []} {}`,
			wantErr: `trailing data`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateJSON([]byte(tt.input))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var v *ViolationError
			assert.ErrorAs(t, err, &v)
		})
	}
}

func TestNullable(t *testing.T) {
	s := String("")
	s.Nullable = true
	assert.NoError(t, s.Validate(nil))
	assert.NoError(t, s.Validate("x"))
}
