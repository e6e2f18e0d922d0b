package ml

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/franckalain/healthwise/internal/failure"
)

// Invoker is the boundary between flows and the model. Each Invoke makes
// exactly one model call and returns only schema-conforming output.
// It never retries, caches, deduplicates or batches.
type Invoker struct {
	model   Model
	timeout time.Duration
}

// NewInvoker wraps model. A non-positive timeout disables the deadline.
func NewInvoker(model Model, timeout time.Duration) *Invoker {
	return &Invoker{model: model, timeout: timeout}
}

// Invoke sends req and returns the validated JSON output.
// Every failure is a failure.Generation error.
func (inv *Invoker) Invoke(ctx context.Context, req *Request) (json.RawMessage, error) {
	const op = "ml.Invoke"
	if req.Schema == nil {
		return nil, failure.Generationf(op, nil, "%s: request has no output schema", req.Name)
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	logger := zerolog.Ctx(ctx).With().Str("flow", req.Name).Logger()
	start := time.Now()

	resp, err := inv.model.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("Generation timed out")
			return nil, failure.Generationf(op, err, "%s: timed out after %s", req.Name, inv.timeout)
		}
		logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("Generation call failed")
		return nil, failure.Generationf(op, err, "%s: model call failed", req.Name)
	}

	raw := extractJSON(resp.Text)
	if err := req.Schema.ValidateJSON(raw); err != nil {
		logger.Warn().Err(err).Str("finish_reason", resp.FinishReason).Msg("Model output rejected")
		return nil, failure.Generationf(op, err, "%s: output does not match schema", req.Name)
	}

	logger.Info().Dur("elapsed", elapsed).Int("bytes", len(raw)).Msg("Generation succeeded")
	return raw, nil
}

// Generate invokes req and decodes the validated output into T.
func Generate[T any](ctx context.Context, inv *Invoker, req *Request) (T, error) {
	var out T
	raw, err := inv.Invoke(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, failure.Generationf("ml.Generate", err, "%s: output does not decode", req.Name)
	}
	return out, nil
}

// extractJSON strips the Markdown code fence some models wrap around JSON
// even when a JSON response type was requested.
func extractJSON(text string) json.RawMessage {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		// Drop the info string ("json") up to the first newline.
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = ""
		}
		rest = strings.TrimSpace(rest)
		rest = strings.TrimSuffix(rest, "```")
		text = strings.TrimSpace(rest)
	}
	return json.RawMessage(text)
}
