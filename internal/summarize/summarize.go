// Package summarize talks to an external LLM collaborator that turns a
// finished recording's transcript into a short summary and a keyword list,
// the out-of-core collaborator this service's offline reprocessing pipeline
// hands completed recordings to.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"speechd/config"
)

const systemPrompt = `You summarize meeting/call transcripts. Given the transcript, respond with a
single JSON object: {"summary": "<2-4 sentence summary>", "keywords": ["..."]}.
Return nothing but that JSON object.`

// Result is the summarizer's structured output for one recording.
type Result struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Client wraps one any-llm-go backend selected by config.SummarizeConfig.
type Client struct {
	backend anyllmlib.Provider
	model   string
}

// New constructs a Client from config, dispatching to the provider named by
// cfg.Summarize.Provider. Returns nil, nil if no provider is configured, so
// callers can treat a disabled summarizer as an absent (not erroring)
// collaborator.
func New(cfg config.SummarizeConfig) (*Client, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("summarize: model must not be empty")
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}

	backend, err := createBackend(cfg.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("summarize: create %q backend: %w", cfg.Provider, err)
	}
	return &Client{backend: backend, model: cfg.Model}, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported summarizer provider %q", providerName)
	}
}

// Summarize asks the backend for a short summary and keyword list for the
// given transcript. The response is expected to be one JSON object; a
// malformed response falls back to treating the raw text as the summary
// with no keywords rather than failing the whole recording.
func (c *Client) Summarize(ctx context.Context, transcript string) (Result, error) {
	params := anyllmlib.CompletionParams{
		Model: c.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: transcript},
		},
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("summarize: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("summarize: empty choices in response")
	}

	content := resp.Choices[0].Message.ContentString()
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Result{Summary: content}, nil
	}
	return result, nil
}
