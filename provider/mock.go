package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/crewmind-ai/crewmind/types"
)

// MockEmbedder is a deterministic Embedder for tests. Identical inputs
// produce identical vectors, and vectors of similar texts are unrelated, so
// tests exercising retrieval seed explicit embeddings instead.
type MockEmbedder struct {
	Dim     int
	Latency time.Duration

	// Fail makes every call return PROVIDER_UNAVAILABLE while set.
	Fail atomic.Bool

	calls atomic.Int64
}

// NewMockEmbedder creates a mock embedder producing vectors of length dim.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{Dim: dim}
}

// Embed returns a deterministic unit-norm-free vector derived from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.calls.Add(1)
	if m.Fail.Load() {
		return nil, types.NewProviderUnavailableError("embedding", fmt.Errorf("mock failure"))
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, types.NewProviderUnavailableError("embedding", ctx.Err())
		}
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, m.Dim)
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		vec[i] = float64(bits%2000)/1000.0 - 1.0
	}
	return vec, nil
}

// Dimensions reports the configured vector length.
func (m *MockEmbedder) Dimensions() int { return m.Dim }

// Calls reports how many times Embed was invoked.
func (m *MockEmbedder) Calls() int64 { return m.calls.Load() }

// MockGenerator is a scriptable Generator for tests.
type MockGenerator struct {
	// Reply produces the response text; defaults to echoing the prompt.
	Reply func(req *GenerateRequest) string

	// Certainty is the self-reported certainty; nil means none supplied.
	Certainty *float64

	Latency time.Duration

	// Fail makes every call return PROVIDER_UNAVAILABLE while set.
	Fail atomic.Bool

	calls atomic.Int64
}

// NewMockGenerator creates a mock generator with the default echo reply.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns the scripted reply.
func (m *MockGenerator) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	m.calls.Add(1)
	if m.Fail.Load() {
		return nil, types.NewProviderUnavailableError("llm", fmt.Errorf("mock failure"))
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, types.NewProviderUnavailableError("llm", ctx.Err())
		}
	}

	text := ""
	if m.Reply != nil {
		text = m.Reply(req)
	} else {
		text = fmt.Sprintf("[%s] analysis: %s", req.Agent.ID, req.Prompt)
	}
	return &GenerateResult{Text: text, Certainty: m.Certainty}, nil
}

// Calls reports how many times Generate was invoked.
func (m *MockGenerator) Calls() int64 { return m.calls.Load() }
