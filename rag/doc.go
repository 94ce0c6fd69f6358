// Package rag implements retrieval-augmented response generation over the
// shared memory store.
//
// Index performs scoped cosine similarity search over stored records, with a
// tag-overlap fallback when no query embedding is available. Pipeline wires
// routing, retrieval, and the external providers into the answer flow:
// route the task, check the idempotency cache, embed, retrieve, generate,
// score confidence, and write the exchange back to memory. Provider failures
// degrade the result; only a failed memory write-back aborts the call.
package rag
