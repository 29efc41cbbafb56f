package director

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStory(t *testing.T) {
	story, err := ParseStory(`{"title":"Cat","story":"A cat naps.","characters":[{"name":"Tom","description":"grey cat"}],"shots":[{"script":"Tom yawns."},{"number":7,"script":"Tom sleeps."}]}`)

	require.NoError(t, err)
	assert.Equal(t, "Cat", story.Title)
	require.Len(t, story.Shots, 2)
	assert.Equal(t, 1, story.Shots[0].Number)
	assert.Equal(t, 7, story.Shots[1].Number)
	assert.Equal(t, "Tom", story.Characters[0].Name)
}

func TestParseStory_Fenced(t *testing.T) {
	story, err := ParseStory("```json\n{\"title\":\"T\",\"shots\":[{\"script\":\"s\"}]}\n```\n")

	require.NoError(t, err)
	assert.Equal(t, "T", story.Title)
}

func TestParseStory_Errors(t *testing.T) {
	_, err := ParseStory(`{"title":"T","shots":[]}`)
	require.ErrorIs(t, err, ErrNoShots)

	_, err = ParseStory("Once upon a time")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse story")
}

func TestStorySchema(t *testing.T) {
	raw, err := StorySchema()
	require.NoError(t, err)

	var s struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &s))

	assert.Equal(t, "object", s.Type)
	assert.ElementsMatch(t, []string{"title", "story", "characters", "shots"}, s.Required)
	assert.Contains(t, string(s.Properties["shots"]), `"script"`)
}

func TestCharacterSheet(t *testing.T) {
	s := Story{Characters: []Character{
		{Name: "Tom", Description: "grey cat", ReferenceImageURI: "gs://bucket/tom.png"},
		{Name: "Ann", Description: "tall woman"},
	}}

	assert.Equal(t, "- **Tom**: grey cat (reference IMAGE_URI: gs://bucket/tom.png)\n- **Ann**: tall woman\n", s.characterSheet())
	assert.Equal(t, "No recurring characters.\n", Story{}.characterSheet())
}

func TestLoadPrompts_Defaults(t *testing.T) {
	p, err := LoadPrompts("")

	require.NoError(t, err)
	assert.Contains(t, p.Story, "8 seconds")
	assert.Contains(t, p.Storyboard, "submit_storyboard")
	assert.Contains(t, p.Video, "video_generation_agent")
	assert.Equal(t, p, DefaultPrompts())
}

func TestLoadPrompts_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StoryboardPromptFile), []byte("custom storyboard"), 0o600))

	p, err := LoadPrompts(dir)

	require.NoError(t, err)
	assert.Equal(t, "custom storyboard", p.Storyboard)
	assert.Equal(t, DefaultPrompts().Story, p.Story)
}

func TestLoadPrompts_MissingDirUsesDefaults(t *testing.T) {
	p, err := LoadPrompts(filepath.Join(t.TempDir(), "nope"))

	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)
}

func TestStoryboardValidate(t *testing.T) {
	ok := Storyboard{VideoPrompt: "p", FirstFrameURI: "gs://b/1.png", LastFrameURI: "gs://b/2.png"}
	assert.NoError(t, ok.validate())

	err := Storyboard{FirstFrameURI: "https://x/1.png"}.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video_prompt is required")
	assert.Contains(t, err.Error(), "first_frame_uri")
	assert.Contains(t, err.Error(), "last_frame_uri")
}
