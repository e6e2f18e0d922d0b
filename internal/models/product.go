package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ProductDetails is the manually entered (or catalog supplied) description
// of a product. Nutrients are per serving.
type ProductDetails struct {
	Ingredients string  `json:"ingredients"`
	Calories    float64 `json:"calories"` // kcal
	Sugar       float64 `json:"sugar"`    // grams
	Sodium      float64 `json:"sodium"`   // milligrams
	Fat         float64 `json:"fat"`      // grams
}

// Describe renders the details as one line of text.
func (d ProductDetails) Describe() string {
	return fmt.Sprintf("Ingredients: %s; Calories: %g kcal; Sugar: %gg; Sodium: %gmg; Fat: %gg",
		d.Ingredients, d.Calories, d.Sugar, d.Sodium, d.Fat)
}

// ProductImage is a captured or uploaded product photo.
type ProductImage struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

var errNotDataURI = errors.New("image must be a base64 data URI")

// ParseDataURI decodes a "data:<mime>;base64,<payload>" URI as produced by
// a canvas capture or a file reader.
func ParseDataURI(uri string) (*ProductImage, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, errNotDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errNotDataURI
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, errNotDataURI
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("unsupported media type %q", mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return &ProductImage{MIMEType: mime, Data: data}, nil
}

// ProductQuery is the ephemeral input of one scan: either details typed in
// by hand or an image. Exactly one of the two is set.
type ProductQuery struct {
	Details *ProductDetails `json:"details,omitempty"`
	Image   *ProductImage   `json:"image,omitempty"`
}

// Validate checks that exactly one source is present.
func (q ProductQuery) Validate() error {
	switch {
	case q.Details == nil && q.Image == nil:
		return errors.New("product query needs details or an image")
	case q.Details != nil && q.Image != nil:
		return errors.New("product query must not carry both details and an image")
	}
	return nil
}
