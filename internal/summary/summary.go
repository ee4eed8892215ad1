// Package summary asks a language model for a short JSON analysis of a
// video and degrades to a placeholder whenever that fails.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/llm"

	"github.com/tubelens/backend/internal/logger"
)

// ErrNotConfigured is reported when no API key was supplied.
var ErrNotConfigured = errors.New("API key not configured")

const rawPreviewLength = 200

// Result is the model's analysis.
type Result struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
	Topics    []string `json:"topics"`
}

// Completer sends one prompt and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// LLMConfig configures the OpenAI-compatible client.
type LLMConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// NewLLMCompleter returns a Completer backed by the go-kit llm client, or
// nil when no API key is configured.
func NewLLMCompleter(cfg LLMConfig) Completer {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := llm.NewClient(cfg.APIBase, cfg.APIKey, cfg.Model,
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		return client.Complete(ctx, "", prompt)
	})
}

// Service produces summaries. It never fails: model errors and unparseable
// answers become placeholder results.
type Service struct {
	completer Completer
	log       *logger.Logger
}

// New creates a Service. A nil completer yields "unavailable" summaries.
func New(completer Completer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{completer: completer, log: log.WithComponent("summary")}
}

// Enabled reports whether a model is configured.
func (s *Service) Enabled() bool {
	return s.completer != nil
}

// Summarize runs prompt through the model.
func (s *Service) Summarize(ctx context.Context, prompt string) Result {
	if s.completer == nil {
		return Unavailable(ErrNotConfigured.Error())
	}

	start := time.Now()
	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.log.Warn(ctx, "language model call failed", map[string]interface{}{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return Unavailable(err.Error())
	}

	result, err := Parse(raw)
	if err != nil {
		s.log.Warn(ctx, "language model returned non-JSON", map[string]interface{}{
			"error": err.Error(),
		})
		return ParseFailure(raw)
	}

	s.log.Debug(ctx, "summary generated", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result
}

// Parse decodes a model answer, tolerating a markdown code fence around it.
func Parse(raw string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		return Result{}, err
	}
	if r.KeyPoints == nil {
		r.KeyPoints = []string{}
	}
	if r.Topics == nil {
		r.Topics = []string{}
	}
	return r, nil
}

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseFailure is the placeholder for an answer that is not JSON.
func ParseFailure(raw string) Result {
	preview := []rune(raw)
	if len(preview) > rawPreviewLength {
		preview = preview[:rawPreviewLength]
	}
	return Result{
		Summary:   "Unable to parse AI response. Raw response: " + string(preview) + "...",
		KeyPoints: []string{"Analysis failed - unable to parse AI response"},
		Topics:    []string{"Error in analysis"},
	}
}

// Unavailable is the placeholder when the model could not be asked.
func Unavailable(reason string) Result {
	return Result{
		Summary:   "AI summary unavailable: " + reason,
		KeyPoints: []string{},
		Topics:    []string{},
	}
}
