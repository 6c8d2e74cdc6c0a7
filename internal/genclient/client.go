// Package genclient talks to the code generation service. The service is an
// opaque function from (source, prompt, signature stub) to a strict two-field
// response; anything that deviates from the contract is a failure and leaves
// no trace in the cache.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promptc/promptc/internal/logging"
	"github.com/promptc/promptc/pkg/types"
)

const systemInstructions = `You implement JavaScript/TypeScript function bodies.
You are given a function signature, a natural-language prompt describing what
the function should do, and the full source file for context.
Respond with the body statements only, never the enclosing signature or braces.
The implementation must satisfy exactly this signature:

%s`

// ErrSchema marks a response that did not match the two-field contract.
var ErrSchema = errors.New("generation response violates schema")

// Config configures the HTTP client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 2 * time.Minute,
	}
}

// Client is an OpenAI-compatible chat-completions client constrained to
// structured output.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a generation client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig("").BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig("").Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig("").Timeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// substitutionSchema is the strict response contract: exactly code and
// imports, both strings, nothing else.
func substitutionSchema() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchema{
			Name:   "Substitution",
			Strict: true,
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code":    map[string]interface{}{"type": "string"},
					"imports": map[string]interface{}{"type": "string"},
				},
				"required":             []string{"code", "imports"},
				"additionalProperties": false,
			},
		},
	}
}

// Generate requests a body for one directive. On success the service's
// self-reported imports field is discarded: deciding which imports the
// generated code actually needs from free text is unreliable, so that job
// belongs to the injector's symbol resolution. Any transport error, non-stop
// completion, or schema violation is returned as an error and the directive
// resolves to no result.
func (c *Client) Generate(ctx context.Context, fullSource, prompt, signatureStub string) (types.Substitution, error) {
	log := logging.Named("genclient")

	if c.cfg.APIKey == "" {
		return types.Substitution{}, fmt.Errorf("generation API key not configured")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemInstructions, signatureStub)},
			{Role: "user", Content: fmt.Sprintf("Prompt: %s\n\nFull source file:\n%s", prompt, fullSource)},
		},
		MaxTokens:      4096,
		Temperature:    0.1,
		ResponseFormat: substitutionSchema(),
	}

	raw, err := c.post(ctx, reqBody)
	if err != nil {
		return types.Substitution{}, err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return types.Substitution{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return types.Substitution{}, fmt.Errorf("service error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return types.Substitution{}, fmt.Errorf("no completion returned")
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "stop" {
		return types.Substitution{}, fmt.Errorf("%w: finish_reason %q", ErrSchema, choice.FinishReason)
	}

	sub, err := decodeStrict(choice.Message.Content)
	if err != nil {
		return types.Substitution{}, err
	}

	log.Debugw("generation succeeded", "prompt_len", len(prompt), "code_len", len(sub.Code))
	// Imports are informational only; resolution happens at inject time.
	sub.Imports = nil
	return sub, nil
}

// decodeStrict validates the two-field contract: both fields present as
// strings, no extra properties.
func decodeStrict(content string) (types.Substitution, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return types.Substitution{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if len(fields) != 2 {
		return types.Substitution{}, fmt.Errorf("%w: expected exactly code and imports, got %d fields", ErrSchema, len(fields))
	}

	var code, imports string
	rawCode, ok := fields["code"]
	if !ok {
		return types.Substitution{}, fmt.Errorf("%w: missing code", ErrSchema)
	}
	if err := json.Unmarshal(rawCode, &code); err != nil {
		return types.Substitution{}, fmt.Errorf("%w: code is not a string", ErrSchema)
	}
	rawImports, ok := fields["imports"]
	if !ok {
		return types.Substitution{}, fmt.Errorf("%w: missing imports", ErrSchema)
	}
	if err := json.Unmarshal(rawImports, &imports); err != nil {
		return types.Substitution{}, fmt.Errorf("%w: imports is not a string", ErrSchema)
	}

	return types.Substitution{Code: code, Imports: &imports}, nil
}

func (c *Client) post(ctx context.Context, reqBody chatRequest) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// One backoff loop for rate limits; every other failure is terminal.
	// Directive-level retry is the cache's job, not ours.
	var lastErr error
	for attempt := 0; attempt <= 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, lastErr
}
