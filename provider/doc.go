// Package provider defines the narrow contracts crewmind uses to call its
// external collaborators: the embedding provider and the LLM provider.
//
// The core never depends on a concrete vendor. Embedder and Generator are the
// only surfaces the pipeline sees; the shipped HTTP implementations speak the
// OpenAI-compatible wire format, and the mock implementations make unit tests
// independent of any live service. All calls honor the caller's context
// deadline and report failures as PROVIDER_UNAVAILABLE so callers can degrade
// instead of aborting.
package provider
