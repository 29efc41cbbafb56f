package director

import (
	"fmt"
	"strings"

	"github.com/germanamz/director/pkg/artifact"
	"github.com/germanamz/director/pkg/blobstore"
)

// ShotResult is the outcome of one shot.
type ShotResult struct {
	Shot       Shot
	Storyboard Storyboard
	VideoURI   string
	Error      string
}

// Turn is the outcome of one Run.
type Turn struct {
	InvocationID string
	Story        Story
	Shots        []ShotResult
	Artifacts    []artifact.Artifact
}

// Videos returns the gs:// URIs of the finished shots in order.
func (t Turn) Videos() []string {
	var uris []string
	for _, s := range t.Shots {
		if s.VideoURI != "" {
			uris = append(uris, s.VideoURI)
		}
	}
	return uris
}

// Markdown renders the turn for the user. Storage URIs are rewritten to
// browser URLs.
func (t Turn) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n%s\n", t.Story.Title, strings.TrimSpace(t.Story.Story))

	if len(t.Story.Characters) > 0 {
		b.WriteString("\n## Characters\n\n")
		b.WriteString(t.Story.characterSheet())
	}

	for _, s := range t.Shots {
		fmt.Fprintf(&b, "\n## Shot %d\n\n%s\n", s.Shot.Number, strings.TrimSpace(s.Shot.Script))

		if s.Storyboard.VideoPrompt != "" {
			fmt.Fprintf(&b, "\n**Video prompt:** %s\n\n", strings.TrimSpace(s.Storyboard.VideoPrompt))
			fmt.Fprintf(&b, "- First frame: %s\n", s.Storyboard.FirstFrameURI)
			fmt.Fprintf(&b, "- Last frame: %s\n", s.Storyboard.LastFrameURI)
		}

		switch {
		case s.VideoURI != "":
			fmt.Fprintf(&b, "- Video: %s\n", s.VideoURI)
		case s.Error != "":
			fmt.Fprintf(&b, "\n> Failed: %s\n", strings.ReplaceAll(strings.TrimSpace(s.Error), "\n", "\n> "))
		}
	}

	if len(t.Artifacts) > 0 {
		fmt.Fprintf(&b, "\n---\n\n%d artifacts saved.\n", len(t.Artifacts))
	}

	return blobstore.RewriteForDisplay(b.String())
}
