// Package types provides the shared type definitions for crewmind.
//
// types is the bottom-most public package and depends on no other package in
// the module. It defines the memory data model (MemoryRecord and its
// enumerations), the routing contracts (AgentProfile, Task, RoutingDecision),
// the caller-facing request/response envelopes, and the coded Error used for
// propagation across package boundaries.
package types
