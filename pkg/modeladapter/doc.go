// Package modeladapter defines the interface and types for LLM completion adapters.
//
// It contains:
//   - [Completer] and its optional extensions [ChoiceCompleter] and [StructuredCompleter]
//   - the embeddable [ModelAdapter] base struct with HTTP helpers, auth, and custom headers
//   - [RetryCompleter], which retries rate-limited calls with exponential backoff
//   - [github.com/germanamz/director/pkg/modeladapter/usage]: thread-safe token usage tracker
//
// This package contains no provider-specific code: concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
