// Package routing assigns tasks to agents.
//
// The Registry is an explicit, injected snapshot of agent profiles; there is
// no ambient global registry, and profiles are read-only at request time.
// The Engine scores the overlap between a task's extracted keywords and each
// profile's specialization tags, breaks ties by priority rank, and maps
// declared type and complexity onto a backend class through an inspectable
// configuration table. Routing is pure computation: identical inputs against
// an unchanged registry always produce the identical decision.
package routing
