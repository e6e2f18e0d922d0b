package models

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestProfileComplete(t *testing.T) {
	assert.False(t, HealthProfile{}.Complete())
	assert.False(t, HealthProfile{Name: "Jane", MedicalConditions: "  "}.Complete())
	assert.False(t, HealthProfile{MedicalConditions: "diabetes"}.Complete())
	assert.True(t, HealthProfile{Name: "Jane", MedicalConditions: "diabetes"}.Complete())
}

func TestConditions(t *testing.T) {
	p := HealthProfile{MedicalConditions: "diabetes,  hypertension\n\nceliac disease,"}
	assert.Equal(t, []string{"diabetes", "hypertension", "celiac disease"}, p.Conditions())
	assert.Empty(t, HealthProfile{}.Conditions())
}

func TestPatchApply(t *testing.T) {
	stored := HealthProfile{Name: "Jane", Age: 40, Gender: GenderFemale, MedicalConditions: "diabetes"}

	got := HealthProfilePatch{MedicalConditions: ptr("diabetes, hypertension")}.Apply(stored)
	want := stored
	want.MedicalConditions = "diabetes, hypertension"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}

	got = HealthProfilePatch{Name: ptr("  Sam "), Age: ptr(-3), Gender: ptr(Gender("robot"))}.Apply(stored)
	assert.Equal(t, "Sam", got.Name)
	assert.Zero(t, got.Age, "negative ages normalize to unset")
	assert.Equal(t, GenderUnset, got.Gender)

	assert.True(t, HealthProfilePatch{}.Empty())
	assert.False(t, PatchFrom(stored).Empty())
	assert.Equal(t, stored, PatchFrom(stored).Apply(HealthProfile{}))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Name: Jane, Age: unknown, Conditions: diabetes",
		HealthProfile{Name: "Jane", MedicalConditions: "diabetes"}.Summary())
}

func TestParseDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	img, err := ParseDataURI("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, img.Data)

	for _, uri := range []string{
		"",
		"image/png;base64," + payload,
		"data:image/png," + payload,
		"data:text/plain;base64," + payload,
		"data:image/png;base64,%%%",
		"data:image/png;base64,",
	} {
		_, err := ParseDataURI(uri)
		assert.Error(t, err, uri)
	}
}

func TestProductQueryValidate(t *testing.T) {
	assert.Error(t, ProductQuery{}.Validate())
	assert.Error(t, ProductQuery{Details: &ProductDetails{}, Image: &ProductImage{}}.Validate())
	assert.NoError(t, ProductQuery{Details: &ProductDetails{}}.Validate())
	assert.NoError(t, ProductQuery{Image: &ProductImage{}}.Validate())
}

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		safe    bool
		status  Status
		wantErr bool
	}{
		{true, StatusSafe, false},
		{false, StatusRisky, false},
		{false, StatusUnsafe, false},
		{false, StatusSafe, true},
		{true, StatusRisky, true},
		{true, StatusUnsafe, true},
		{false, "dangerous", true},
	}
	for _, tt := range tests {
		err := AnalysisResult{Safe: tt.safe, Status: tt.status}.CheckConsistency()
		assert.Equal(t, tt.wantErr, err != nil, "safe=%t status=%s", tt.safe, tt.status)
	}
}

func TestHistoryRecord(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	rec := AnalysisResult{Status: StatusRisky}.HistoryRecord("Granola", at)
	assert.Equal(t, "Granola", rec.ProductName)
	assert.Equal(t, StatusRisky, rec.SafetyStatus)
	assert.Equal(t, time.UTC, rec.ScanDate.Location())
	assert.True(t, rec.ScanDate.Equal(at))

	rec = AnalysisResult{ProductName: "Choco Crunch", Status: StatusSafe}.HistoryRecord("Granola", at)
	assert.Equal(t, "Choco Crunch", rec.ProductName)
}

func TestHistoryStats(t *testing.T) {
	var s HistoryStats
	assert.Zero(t, s.SafePercent())

	s.Add(StatusSafe)
	s.AddN(StatusRisky, 2)
	s.Add(StatusUnsafe)
	assert.Equal(t, HistoryStats{Total: 4, Safe: 1, Risky: 2, Unsafe: 1}, s)
	assert.Equal(t, 25, s.SafePercent())
}

func TestTranscriptAppend(t *testing.T) {
	var tr Transcript
	q := tr.Append(SenderUser, "Can I eat bananas?")
	a := tr.Append(SenderAssistant, "In moderation.")
	require.Len(t, tr.Turns, 2)
	assert.NotEqual(t, q.ID, a.ID)
	assert.Equal(t, SenderAssistant, tr.Turns[1].Sender)
}
