package director

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/tools/toolbox"
)

// Storyboard is what the storyboard stage submits for a shot.
type Storyboard struct {
	VideoPrompt   string `json:"video_prompt" jsonschema:"Prompt for the video model: action, camera movement, lighting, sound and dialogue between the two frames."`
	FirstFrameURI string `json:"first_frame_uri" jsonschema:"gs:// URI of the shot's first frame."`
	LastFrameURI  string `json:"last_frame_uri" jsonschema:"gs:// URI of the shot's last frame."`
}

func (b Storyboard) validate() error {
	var errs []error

	if strings.TrimSpace(b.VideoPrompt) == "" {
		errs = append(errs, errors.New("video_prompt is required"))
	}
	if !blobstore.IsStorageURI(b.FirstFrameURI) {
		errs = append(errs, fmt.Errorf("first_frame_uri must be a %s URI, got %q", blobstore.Scheme, b.FirstFrameURI))
	}
	if !blobstore.IsStorageURI(b.LastFrameURI) {
		errs = append(errs, fmt.Errorf("last_frame_uri must be a %s URI, got %q", blobstore.Scheme, b.LastFrameURI))
	}

	return errors.Join(errs...)
}

// submitTool builds submit_storyboard. An accepted submission is written to
// dst; a rejected one is returned to the model as a tool error.
func submitTool(dst *Storyboard) (toolbox.Tool, error) {
	return toolbox.NewTyped(SubmitStoryboardTool,
		"Submits the finished storyboard of the shot. Call it once both frames exist.",
		func(_ context.Context, in Storyboard) (string, error) {
			if err := in.validate(); err != nil {
				return "", err
			}
			*dst = in
			return "Storyboard accepted.", nil
		},
	)
}

func storyboardRequest(story Story, shot Shot, previousLastFrame string, ar media.AspectRatio) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Story: %s\n\n%s\n\n", story.Title, strings.TrimSpace(story.Story))
	b.WriteString("## Characters\n\n")
	b.WriteString(story.characterSheet())

	fmt.Fprintf(&b, "\n## Shot %d of %d\n\n%s\n", shot.Number, len(story.Shots), strings.TrimSpace(shot.Script))
	if shot.Camera != "" {
		fmt.Fprintf(&b, "\nCamera: %s\n", shot.Camera)
	}

	b.WriteString("\n## Previous shot's last frame\n\n")
	if previousLastFrame != "" {
		fmt.Fprintf(&b, "%s%s\n", ImageURIPrefix, previousLastFrame)
	} else {
		b.WriteString("None, this is the first shot.\n")
	}

	fmt.Fprintf(&b, "\nAspect ratio: %s\n", ar)

	return b.String()
}

func videoRequest(shot Shot, board Storyboard, ar media.AspectRatio) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create the video for shot %d.\n\n", shot.Number)
	fmt.Fprintf(&b, "Video prompt:\n%s\n\n", strings.TrimSpace(board.VideoPrompt))
	fmt.Fprintf(&b, "First frame: %s\n", board.FirstFrameURI)
	fmt.Fprintf(&b, "Last frame: %s\n", board.LastFrameURI)
	fmt.Fprintf(&b, "Duration: %d seconds\n", media.DefaultDuration)
	fmt.Fprintf(&b, "Aspect ratio: %s\n", ar)

	return b.String()
}
