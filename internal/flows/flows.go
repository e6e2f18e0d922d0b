// Package flows exposes one operation per use case. Each operation checks
// its input, renders its instruction template, makes one generation call
// and returns the typed output. Failures propagate unchanged: no retry,
// no fallback values.
package flows

import (
	"context"

	"github.com/franckalain/healthwise/internal/ml"
	"github.com/franckalain/healthwise/internal/prompt"
	"github.com/franckalain/healthwise/internal/schema"
)

// Flows is the facade over the generation invoker.
type Flows struct {
	inv *ml.Invoker
}

// New returns the facade.
func New(inv *ml.Invoker) *Flows {
	return &Flows{inv: inv}
}

// run renders tmpl with data and invokes it under out's schema.
func run[T any](ctx context.Context, f *Flows, name string, tmpl *prompt.Template, data any, out *schema.Schema, safety ...ml.SafetySetting) (T, error) {
	var zero T
	p, err := tmpl.Render(data)
	if err != nil {
		return zero, err
	}
	return ml.Generate[T](ctx, f.inv, &ml.Request{
		Name:   name,
		Prompt: p,
		Schema: out,
		Safety: safety,
	})
}
