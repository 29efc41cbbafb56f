package generation

import (
	"context"

	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/tools/toolbox"
)

// Tool names as seen by the models.
const (
	ImageToolName = "generate_image"
	VideoToolName = "generate_video"
)

// ImageArgs are the generate_image parameters.
type ImageArgs struct {
	Prompt            string `json:"prompt" jsonschema:"Image generation prompt. May refer to the source image if one is provided."`
	SourceImageGCSURI string `json:"source_image_gcs_uri,omitempty" jsonschema:"Optional gs:// URI of a source image to edit or draw from."`
	AspectRatio       string `json:"aspect_ratio,omitempty" jsonschema:"Aspect ratio of the image."`
}

// VideoArgs are the generate_video parameters.
type VideoArgs struct {
	Prompt                string `json:"prompt" jsonschema:"Video generation prompt."`
	StartFrameImageGCSURI string `json:"start_frame_image_gcs_uri,omitempty" jsonschema:"Optional gs:// URI of the start frame image for image-to-video generation."`
	EndFrameImageGCSURI   string `json:"end_frame_image_gcs_uri,omitempty" jsonschema:"Optional gs:// URI of the end frame image. Only valid together with a start frame."`
	VideoDurationSeconds  int    `json:"video_duration_seconds,omitempty" jsonschema:"Video duration in seconds."`
	AspectRatio           string `json:"aspect_ratio,omitempty" jsonschema:"Aspect ratio of the video."`
}

// ImageTool exposes g as generate_image. The tool output is the JSON
// encoding of a media.Result.
func ImageTool(g *ImageGenerator) (toolbox.Tool, error) {
	return toolbox.NewTyped(ImageToolName,
		"Generates an image with the Gemini image model. Returns JSON with the gs:// URI of the image or an error text.",
		func(ctx context.Context, in ImageArgs) (media.Result, error) {
			ar, err := media.ParseAspectRatio(in.AspectRatio)
			if err != nil {
				return media.Result{}, err
			}

			res, err := g.Generate(ctx, ImageRequest{
				Prompt:         in.Prompt,
				SourceImageURI: in.SourceImageGCSURI,
				AspectRatio:    ar,
			})
			if err != nil {
				return media.Result{}, err
			}

			return res.Normalize(), nil
		},
		toolbox.WithEnum("aspect_ratio", aspectRatioValues()...),
		toolbox.WithDefault("aspect_ratio", string(media.DefaultAspectRatio)),
	)
}

// VideoTool exposes g as generate_video. The tool output is the JSON
// encoding of a media.Result.
func VideoTool(g *VideoGenerator) (toolbox.Tool, error) {
	return toolbox.NewTyped(VideoToolName,
		"Generates a video with the Veo model from a prompt and optional start and end frames. Returns JSON with the gs:// URI of the video or an error text.",
		func(ctx context.Context, in VideoArgs) (media.Result, error) {
			ar, err := media.ParseAspectRatio(in.AspectRatio)
			if err != nil {
				return media.Result{}, err
			}

			d, err := media.ParseDuration(in.VideoDurationSeconds)
			if err != nil {
				return media.Result{}, err
			}

			res, err := g.Generate(ctx, VideoRequest{
				Prompt:          in.Prompt,
				StartFrameURI:   in.StartFrameImageGCSURI,
				EndFrameURI:     in.EndFrameImageGCSURI,
				DurationSeconds: d,
				AspectRatio:     ar,
			})
			if err != nil {
				return media.Result{}, err
			}

			return res.Normalize(), nil
		},
		toolbox.WithEnum("video_duration_seconds", durationValues()...),
		toolbox.WithDefault("video_duration_seconds", int(media.DefaultDuration)),
		toolbox.WithEnum("aspect_ratio", aspectRatioValues()...),
		toolbox.WithDefault("aspect_ratio", string(media.DefaultAspectRatio)),
	)
}

func aspectRatioValues() []any {
	out := make([]any, len(media.AspectRatios))
	for i, ar := range media.AspectRatios {
		out[i] = string(ar)
	}
	return out
}

func durationValues() []any {
	out := make([]any, len(media.Durations))
	for i, d := range media.Durations {
		out[i] = int(d)
	}
	return out
}
