package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/insight-engine/internal/config"
	"google.golang.org/genai"
)

// DefaultModelName is the generation model used unless configured otherwise.
const DefaultModelName = "gemini-2.5-flash"

// DefaultGenerateTimeout caps a single generation call. The underlying
// transport default is unbounded, which has stalled runs before.
const DefaultGenerateTimeout = 60 * time.Second

// Generator sends one prompt to the text-generation service and returns the
// raw text payload extracted from the response envelope. Implementations must
// not retry internally: the service is metered, and hidden retries mean
// hidden spend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the Gemini-backed Generator. The API key is resolved
// per call through the secret source, which callers typically wrap with a
// TTL cache.
type GeminiGenerator struct {
	keys    config.SecretSource
	model   string
	timeout time.Duration
}

// NewGeminiGenerator creates a generator for the given model. Empty model or
// zero timeout fall back to the defaults.
func NewGeminiGenerator(keys config.SecretSource, model string, timeout time.Duration) *GeminiGenerator {
	if model == "" {
		model = DefaultModelName
	}
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &GeminiGenerator{keys: keys, model: model, timeout: timeout}
}

// Generate implements Generator. Failure classes: TransportError for
// network-level failures, ServiceError for non-2xx service replies,
// ErrEmptyGeneration for a reply with no usable text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key, err := g.keys.GeminiAPIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving generation api key: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", &TransportError{Err: err}
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &ServiceError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return "", &TransportError{Err: err}
	}

	text := firstCandidateText(resp)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// firstCandidateText concatenates the text parts of the first candidate.
func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

var _ Generator = (*GeminiGenerator)(nil)
