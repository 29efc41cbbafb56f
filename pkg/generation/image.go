package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/media"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultImageModel is the image model used when none is configured.
const DefaultImageModel = "gemini-2.5-flash-image"

// DefaultImageAttempts is how many calls are made before giving up on an
// empty response.
const DefaultImageAttempts = 5

// ContentGenerator is the part of the genai Models service the image
// adapter uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Uploader stores inline image bytes.
type Uploader interface {
	Upload(ctx context.Context, owner string, data []byte, mimeType string) (string, error)
}

// ImageRequest describes one image generation.
type ImageRequest struct {
	Prompt         string
	SourceImageURI string
	AspectRatio    media.AspectRatio
}

// ImageGenerator produces images with a Gemini image model.
type ImageGenerator struct {
	Models   ContentGenerator
	Store    Uploader
	Model    string
	Attempts int
}

var errEmptyImage = errors.New("empty image response")

// Generate calls the model until it returns an image or the attempts run
// out. Inline image bytes are uploaded under the calling agent's name.
func (g *ImageGenerator) Generate(ctx context.Context, req ImageRequest) (media.Result, error) {
	model := g.Model
	if model == "" {
		model = DefaultImageModel
	}

	attempts := g.Attempts
	if attempts <= 0 {
		attempts = DefaultImageAttempts
	}

	ar := req.AspectRatio
	if ar == "" {
		ar = media.DefaultAspectRatio
	}

	owner := agentctx.AgentNameOr(ctx, "agent")
	log := zerolog.Ctx(ctx).With().Str("component", "generation").Str("model", model).Str("agent", owner).Logger()

	contents := []*genai.Content{imageContent(req)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: string(ar)},
	}

	attempt := 0
	op := func() (string, error) {
		attempt++

		resp, err := g.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("generation: generate image: %w", err))
		}

		uri, text, err := g.imageURI(ctx, owner, resp)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if uri != "" {
			return uri, nil
		}

		if text != "" {
			log.Warn().Int("attempt", attempt).Str("response", text).Msg("image model answered without an image")
		}

		return "", errEmptyImage
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)), ctx)

	uri, err := backoff.RetryWithData(op, b)
	switch {
	case errors.Is(err, errEmptyImage):
		log.Error().Int("attempts", attempt).Msg("image generation returned nothing")
		return media.Failed(media.EmptyGeneration), nil
	case err != nil:
		return media.Result{}, err
	}

	log.Info().Int("attempts", attempt).Str("uri", uri).Msg("image generated")

	return media.OK(uri), nil
}

func imageContent(req ImageRequest) *genai.Content {
	parts := make([]*genai.Part, 0, 2)

	if req.SourceImageURI != "" {
		parts = append(parts, &genai.Part{
			FileData: &genai.FileData{
				FileURI:  req.SourceImageURI,
				MIMEType: guessMIMEType(req.SourceImageURI),
			},
		})
	}

	parts = append(parts, &genai.Part{Text: req.Prompt})

	return &genai.Content{Role: "user", Parts: parts}
}

// imageURI returns the first image in the response, uploading inline bytes.
// When there is none it returns the model's non-thought text instead.
func (g *ImageGenerator) imageURI(ctx context.Context, owner string, resp *genai.GenerateContentResponse) (string, string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", "", nil
	}

	var text strings.Builder

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}

		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}

		if part.FileData != nil && part.FileData.FileURI != "" {
			return part.FileData.FileURI, "", nil
		}

		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			uri, err := g.Store.Upload(ctx, owner, part.InlineData.Data, part.InlineData.MIMEType)
			if err != nil {
				return "", "", fmt.Errorf("generation: upload image: %w", err)
			}
			return uri, "", nil
		}
	}

	return "", text.String(), nil
}
