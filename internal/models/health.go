package models

import (
	"fmt"
	"strings"
)

// Gender is the self-reported gender of a profile. The empty value means unset.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the known genders or unset.
func (g Gender) Valid() bool {
	switch g {
	case GenderUnset, GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// HealthProfile is the user's self-reported demographic and medical data.
// One record exists per user; saves merge a HealthProfilePatch into it.
type HealthProfile struct {
	Name              string `json:"name"`
	Age               int    `json:"age,omitempty"` // 0 means unset
	Gender            Gender `json:"gender"`
	MedicalConditions string `json:"medicalConditions"`
}

// Conditions splits MedicalConditions on commas and newlines.
func (p HealthProfile) Conditions() []string {
	return SplitConditions(p.MedicalConditions)
}

// Complete reports whether the profile carries the fields a scan needs.
func (p HealthProfile) Complete() bool {
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.MedicalConditions) != ""
}

// Normalize coerces out-of-range values back to unset.
func (p *HealthProfile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	if p.Age < 0 {
		p.Age = 0
	}
	if !p.Gender.Valid() {
		p.Gender = GenderUnset
	}
}

// Summary renders the profile as a single line for free-text prompts.
func (p HealthProfile) Summary() string {
	age := "unknown"
	if p.Age > 0 {
		age = fmt.Sprint(p.Age)
	}
	return fmt.Sprintf("Name: %s, Age: %s, Conditions: %s", p.Name, age, p.MedicalConditions)
}

// SplitConditions turns a comma or newline separated list into trimmed,
// non-empty entries.
func SplitConditions(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// HealthProfilePatch is a partial profile write. Nil fields are left as
// stored; supplied fields overwrite.
type HealthProfilePatch struct {
	Name              *string `json:"name,omitempty"`
	Age               *int    `json:"age,omitempty"`
	Gender            *Gender `json:"gender,omitempty"`
	MedicalConditions *string `json:"medicalConditions,omitempty"`
}

// PatchFrom returns a patch that supplies every field of p.
func PatchFrom(p HealthProfile) HealthProfilePatch {
	return HealthProfilePatch{
		Name:              &p.Name,
		Age:               &p.Age,
		Gender:            &p.Gender,
		MedicalConditions: &p.MedicalConditions,
	}
}

// Apply merges the patch into p and normalizes the result.
func (u HealthProfilePatch) Apply(p HealthProfile) HealthProfile {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.MedicalConditions != nil {
		p.MedicalConditions = *u.MedicalConditions
	}
	p.Normalize()
	return p
}

// Empty reports whether the patch supplies no field.
func (u HealthProfilePatch) Empty() bool {
	return u.Name == nil && u.Age == nil && u.Gender == nil && u.MedicalConditions == nil
}
