// Package media defines the result envelope shared by the generation
// adapters and the value types their requests accept.
package media

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmptyGeneration is the error text reported when a generator produced
// nothing usable.
const EmptyGeneration = "Empty generation result."

// Result is the envelope returned by every generation adapter. Exactly one
// of URI and Error is non-empty.
type Result struct {
	URI   string `json:"uri"`
	Error string `json:"error,omitempty"`
}

// OK returns a successful result.
func OK(uri string) Result { return Result{URI: uri} }

// Failed returns a result carrying an error message.
func Failed(msg string) Result { return Result{Error: msg} }

// Normalize enforces the one-of invariant. An empty result becomes an empty
// generation error; a result with both fields keeps only the error.
func (r Result) Normalize() Result {
	switch {
	case r.URI == "" && r.Error == "":
		return Result{Error: EmptyGeneration}
	case r.URI != "" && r.Error != "":
		return Result{Error: r.Error}
	default:
		return r
	}
}

// Succeeded reports whether the result carries a URI.
func (r Result) Succeeded() bool { return r.Error == "" && r.URI != "" }

// String returns the JSON encoding used as tool output.
func (r Result) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// AspectRatio is the frame shape of generated media.
type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
)

// DefaultAspectRatio is used when a request leaves the ratio empty.
const DefaultAspectRatio = Landscape

// AspectRatios lists the accepted values in schema order.
var AspectRatios = []AspectRatio{Landscape, Portrait}

// ParseAspectRatio validates s, mapping "" to DefaultAspectRatio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case "":
		return DefaultAspectRatio, nil
	case Landscape:
		return Landscape, nil
	case Portrait:
		return Portrait, nil
	default:
		return "", fmt.Errorf("media: unsupported aspect ratio %q (want 16:9 or 9:16)", s)
	}
}

// Duration is a video length in seconds.
type Duration int

// DefaultDuration is used when a request leaves the duration at zero.
const DefaultDuration Duration = 8

// Durations lists the accepted values in schema order.
var Durations = []Duration{4, 6, 8}

// ParseDuration validates seconds, mapping 0 to DefaultDuration.
func ParseDuration(seconds int) (Duration, error) {
	if seconds == 0 {
		return DefaultDuration, nil
	}
	for _, d := range Durations {
		if int(d) == seconds {
			return d, nil
		}
	}
	return 0, fmt.Errorf("media: unsupported duration %ds (want 4, 6 or 8)", seconds)
}
