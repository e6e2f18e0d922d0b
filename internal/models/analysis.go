package models

import (
	"fmt"
	"time"
)

// Status is the color-coded safety verdict of an analysis.
type Status string

const (
	StatusSafe   Status = "safe"
	StatusRisky  Status = "risky"
	StatusUnsafe Status = "unsafe"
)

// Statuses lists every valid status, in severity order.
var Statuses = []Status{StatusSafe, StatusRisky, StatusUnsafe}

// ParseStatus returns the Status named by s.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown safety status %q", s)
}

// NutrientDetails are the nutrients the model read off a product image.
type NutrientDetails struct {
	Calories float64 `json:"calories"`
	Sugar    float64 `json:"sugar"`
	Sodium   float64 `json:"sodium"`
	Fat      float64 `json:"fat"`
}

// AnalysisResult is the verdict produced once per scan.
type AnalysisResult struct {
	ProductName     string           `json:"productName,omitempty"`
	Details         *NutrientDetails `json:"details,omitempty"`
	Safe            bool             `json:"safe"`
	Status          Status           `json:"status"`
	Explanation     string           `json:"explanation"`
	Recommendations []string         `json:"recommendations"`
}

// CheckConsistency enforces that Status is known and that Safe is true
// exactly when Status is safe.
func (r AnalysisResult) CheckConsistency() error {
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Safe != (r.Status == StatusSafe) {
		return fmt.Errorf("safe=%t contradicts status %q", r.Safe, r.Status)
	}
	return nil
}

// HistoryRecord projects the result into the record kept in scan history.
func (r AnalysisResult) HistoryRecord(fallbackName string, at time.Time) ScanHistoryRecord {
	name := r.ProductName
	if name == "" {
		name = fallbackName
	}
	return ScanHistoryRecord{
		ProductName:  name,
		SafetyStatus: r.Status,
		ScanDate:     at.UTC(),
	}
}
