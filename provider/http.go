package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crewmind-ai/crewmind/types"
)

// HTTPConfig holds the common configuration for the HTTP-backed providers.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	// RequestsPerSecond caps the client-side call rate. 0 disables the
	// limiter.
	RequestsPerSecond float64
}

// baseClient provides shared request plumbing for the HTTP providers.
type baseClient struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func newBaseClient(name string, cfg HTTPConfig) *baseClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &baseClient{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: limiter,
	}
}

// doRequest posts a JSON body and returns the raw response body. Transport
// errors and non-2xx statuses both map to PROVIDER_UNAVAILABLE so callers
// can take their degraded path.
func (c *baseClient) doRequest(ctx context.Context, endpoint string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewProviderUnavailableError(c.name, err)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewProviderUnavailableError(c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderUnavailableError(c.name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewProviderUnavailableError(c.name,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// HTTPEmbedder is an Embedder speaking the OpenAI-compatible /v1/embeddings
// wire format.
type HTTPEmbedder struct {
	*baseClient
	model      string
	dimensions int
}

// NewHTTPEmbedder creates an embedder against an OpenAI-compatible endpoint.
func NewHTTPEmbedder(cfg HTTPConfig, dimensions int) *HTTPEmbedder {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if dimensions == 0 {
		dimensions = 1536
	}
	return &HTTPEmbedder{
		baseClient: newBaseClient("embedding", cfg),
		model:      cfg.Model,
		dimensions: dimensions,
	}
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	respBody, err := e.doRequest(ctx, "/v1/embeddings", embedRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, types.NewProviderUnavailableError(e.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, types.NewProviderUnavailableError(e.name, fmt.Errorf("no embeddings returned"))
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions reports the configured vector length.
func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

// HTTPGenerator is a Generator speaking the OpenAI-compatible
// /v1/chat/completions wire format.
type HTTPGenerator struct {
	*baseClient
	model string
}

// NewHTTPGenerator creates a generator against an OpenAI-compatible endpoint.
func NewHTTPGenerator(cfg HTTPConfig) *HTTPGenerator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &HTTPGenerator{
		baseClient: newBaseClient("llm", cfg),
		model:      cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate synthesizes a response grounded on the retrieved context.
func (g *HTTPGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	respBody, err := g.doRequest(ctx, "/v1/chat/completions", chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req)},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, types.NewProviderUnavailableError(g.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewProviderUnavailableError(g.name, fmt.Errorf("no choices returned"))
	}
	// The chat wire format carries no self-reported certainty.
	return &GenerateResult{Text: resp.Choices[0].Message.Content}, nil
}

// buildSystemPrompt renders the agent persona, the retrieved memories, and
// any upstream outputs into the system message.
func buildSystemPrompt(req *GenerateRequest) string {
	var b strings.Builder
	name := req.Agent.DisplayName
	if name == "" {
		name = req.Agent.ID
	}
	fmt.Fprintf(&b, "You are %s, specialized in %s.\n",
		name, strings.Join(req.Agent.SpecializationTags, ", "))
	if req.Focus != "" {
		fmt.Fprintf(&b, "Focus on: %s.\n", req.Focus)
	}
	if len(req.Context) > 0 {
		b.WriteString("\nRelevant knowledge from shared memory:\n")
		for _, rec := range req.Context {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", rec.Owner, rec.Kind, rec.Content)
		}
	}
	if len(req.UpstreamOutputs) > 0 {
		b.WriteString("\nOutputs from agents earlier in the chain:\n")
		for _, out := range req.UpstreamOutputs {
			fmt.Fprintf(&b, "- %s\n", out)
		}
	}
	return b.String()
}
