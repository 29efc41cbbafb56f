package director

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Prompt file names, both embedded and in a prompts directory.
const (
	StoryPromptFile      = "story_agent.md"
	StoryboardPromptFile = "storyboard_agent.md"
	VideoPromptFile      = "video_agent.md"
)

// Prompts holds the instructions of the three stage agents.
type Prompts struct {
	Story      string
	Storyboard string
	Video      string
}

// DefaultPrompts returns the embedded stage instructions.
func DefaultPrompts() Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		// The embedded files are part of the binary.
		panic(err)
	}
	return p
}

// LoadPrompts reads the stage instructions. A file present in dir overrides
// the embedded default of the same name; an empty dir uses only defaults.
func LoadPrompts(dir string) (Prompts, error) {
	var p Prompts

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{StoryPromptFile, &p.Story},
		{StoryboardPromptFile, &p.Storyboard},
		{VideoPromptFile, &p.Video},
	} {
		text, err := loadPrompt(dir, f.name)
		if err != nil {
			return Prompts{}, err
		}
		*f.dst = text
	}

	return p, nil
}

func loadPrompt(dir, name string) (string, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			return string(data), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("director: read prompt %s: %w", name, err)
		}
	}

	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("director: embedded prompt %s: %w", name, err)
	}

	return string(data), nil
}
