// Package providers holds the concrete model adapters.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/director/pkg/providers/gemini]: Completer for the Gemini generateContent REST API
//   - [github.com/germanamz/director/pkg/providers/vertex]: Completer on a genai client (Vertex AI credentials)
//
// The Completer interface and the embeddable HTTP base live in
// [github.com/germanamz/director/pkg/modeladapter].
package providers
