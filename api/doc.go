// Package api exposes the service over plain net/http JSON endpoints.
//
// Every response uses the same envelope: a success flag, the payload under
// data, and a structured error with a stable code on failure. Transport
// status codes mirror the error codes, but callers must check the envelope.
package api
