package director

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrNoShots is returned when the story stage produced a story without shots.
var ErrNoShots = errors.New("director: story has no shots")

// Story is the structured output of the story stage.
type Story struct {
	Title      string      `json:"title" jsonschema:"Title of the film."`
	Story      string      `json:"story" jsonschema:"The full story in prose."`
	Characters []Character `json:"characters" jsonschema:"Every recurring character."`
	Shots      []Shot      `json:"shots" jsonschema:"The shots in screen order. Each shot lasts 8 seconds."`
}

// Character is a recurring character with a description precise enough to
// draw the same person in every frame.
type Character struct {
	Name              string `json:"name" jsonschema:"Character name."`
	Description       string `json:"description" jsonschema:"Detailed visual description."`
	ReferenceImageURI string `json:"reference_image_uri,omitempty" jsonschema:"gs:// URI of a user supplied reference image, if any."`
}

// Shot is one continuous camera setup of the story.
type Shot struct {
	Number int    `json:"number" jsonschema:"1-based position of the shot."`
	Script string `json:"script" jsonschema:"What is seen and what happens during the shot, up to its final moment."`
	Camera string `json:"camera,omitempty" jsonschema:"Camera framing and movement."`
}

// StorySchema returns the JSON Schema of Story used as the story stage's
// response schema.
func StorySchema() (json.RawMessage, error) {
	s, err := jsonschema.For[Story](nil)
	if err != nil {
		return nil, fmt.Errorf("director: story schema: %w", err)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("director: marshal story schema: %w", err)
	}

	return raw, nil
}

// ParseStory decodes the story stage's reply. The JSON document may be
// wrapped in a Markdown code fence. Shots without a number are numbered by
// position.
func ParseStory(text string) (Story, error) {
	var story Story
	if err := json.Unmarshal([]byte(unfence(text)), &story); err != nil {
		return Story{}, fmt.Errorf("director: parse story: %w", err)
	}

	if len(story.Shots) == 0 {
		return Story{}, ErrNoShots
	}

	for i := range story.Shots {
		if story.Shots[i].Number == 0 {
			story.Shots[i].Number = i + 1
		}
	}

	return story, nil
}

// unfence strips a surrounding ``` or ```json fence.
func unfence(text string) string {
	text = strings.TrimSpace(text)

	rest, ok := strings.CutPrefix(text, "```")
	if !ok {
		return text
	}

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "```")

	return strings.TrimSpace(rest)
}

// characterSheet renders the characters for stage requests.
func (s Story) characterSheet() string {
	if len(s.Characters) == 0 {
		return "No recurring characters.\n"
	}

	var b strings.Builder
	for _, c := range s.Characters {
		fmt.Fprintf(&b, "- **%s**: %s", c.Name, c.Description)
		if c.ReferenceImageURI != "" {
			fmt.Fprintf(&b, " (reference %s%s)", ImageURIPrefix, c.ReferenceImageURI)
		}
		b.WriteString("\n")
	}

	return b.String()
}
