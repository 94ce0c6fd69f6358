// Package crew orchestrates multi-agent sessions over the RAG pipeline.
//
// A session fans one task out to several agents, in parallel or chained,
// and aggregates their outputs into a synthesis: consensus points recurring
// across agents, mutually exclusive divergent points, and recommendations
// ranked by supporting-agent count. Participants that fail or time out are
// marked failed without aborting their siblings; a session only fails as a
// whole when no participant succeeds.
package crew
