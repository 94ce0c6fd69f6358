package provider

import (
	"context"

	"github.com/crewmind-ai/crewmind/types"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	// Embed returns the embedding for text, or PROVIDER_UNAVAILABLE.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions reports the vector length this embedder produces.
	Dimensions() int
}

// GenerateRequest carries one synthesis call to the LLM provider. Context
// records are the retrieved memories the response should ground on; in
// chained sessions UpstreamOutputs additionally carries the outputs of
// earlier participants.
type GenerateRequest struct {
	Agent           types.AgentProfile
	Prompt          string
	Focus           string
	Context         []types.MemoryRecord
	UpstreamOutputs []string
}

// GenerateResult is the provider's reply. Certainty is the provider's
// self-reported confidence in [0,1]; nil when the provider supplies none.
type GenerateResult struct {
	Text      string
	Certainty *float64
}

// Generator synthesizes an agent response from a prompt and retrieved
// context.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}
