// Package catalog serves the fixed set of demo products used by the manual
// analysis path.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/franckalain/healthwise/internal/models"
)

//go:embed products.yaml
var productsYAML []byte

// Product is one demo product.
type Product struct {
	ID        string                `json:"id" yaml:"id"`
	Name      string                `json:"name" yaml:"name"`
	ImageURL  string                `json:"imageUrl" yaml:"image_url"`
	ImageHint string                `json:"imageHint" yaml:"image_hint"`
	Details   models.ProductDetails `json:"details" yaml:"-"`
}

type productDoc struct {
	Product `yaml:",inline"`
	Details struct {
		Ingredients string  `yaml:"ingredients"`
		Calories    float64 `yaml:"calories"`
		Sugar       float64 `yaml:"sugar"`
		Sodium      float64 `yaml:"sodium"`
		Fat         float64 `yaml:"fat"`
	} `yaml:"details"`
}

var load = sync.OnceValues(func() ([]Product, error) {
	return parse(productsYAML)
})

func parse(data []byte) ([]Product, error) {
	var docs []productDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse product catalog: %w", err)
	}
	seen := make(map[string]bool, len(docs))
	products := make([]Product, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" || seen[d.ID] {
			return nil, fmt.Errorf("product catalog: missing or duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		p := d.Product
		p.Details = models.ProductDetails{
			Ingredients: d.Details.Ingredients,
			Calories:    d.Details.Calories,
			Sugar:       d.Details.Sugar,
			Sodium:      d.Details.Sodium,
			Fat:         d.Details.Fat,
		}
		products = append(products, p)
	}
	return products, nil
}

// Products returns a copy of the catalog in display order.
func Products() []Product {
	products, err := load()
	if err != nil {
		// The catalog is embedded; a parse error is a build defect.
		panic(err)
	}
	return append([]Product(nil), products...)
}

// Lookup returns the product with id.
func Lookup(id string) (Product, bool) {
	for _, p := range Products() {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
