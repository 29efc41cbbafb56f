package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/operation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultVideoModel is the video model used when none is configured.
const DefaultVideoModel = "veo-3.1-generate-preview"

// Fixed generation settings. A single video per call keeps the seed
// meaningful.
const (
	videoSeed        = 1
	videosPerRequest = 1
	// DefaultPersonGeneration allows adult subjects.
	DefaultPersonGeneration = "allow_adult"
)

// VideoSubmitter starts a video generation job.
type VideoSubmitter interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// OperationGetter refreshes a video generation job.
type OperationGetter interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// VideoRequest describes one video generation.
type VideoRequest struct {
	Prompt          string
	StartFrameURI   string
	EndFrameURI     string
	DurationSeconds media.Duration
	AspectRatio     media.AspectRatio
}

// VideoGenerator produces videos with a Veo model.
type VideoGenerator struct {
	Models     VideoSubmitter
	Operations OperationGetter
	Model      string
	// OutputPrefix is the gs:// folder videos are written under; the
	// calling agent's name is appended.
	OutputPrefix     string
	PersonGeneration string
	PollInterval     time.Duration
	// Sleep overrides the poller's wait between refreshes.
	Sleep operation.SleepFunc
}

// Generate submits the job and waits for it to finish.
func (g *VideoGenerator) Generate(ctx context.Context, req VideoRequest) (media.Result, error) {
	model := g.Model
	if model == "" {
		model = DefaultVideoModel
	}

	agentName := agentctx.AgentNameOr(ctx, "agent")
	invocation := agentctx.InvocationIDFromContext(ctx)
	if invocation == "" {
		invocation = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	log := zerolog.Ctx(ctx).With().
		Str("component", "generation").
		Str("model", model).
		Str("invocation", invocation).
		Logger()

	var image *genai.Image
	if req.StartFrameURI != "" {
		image = &genai.Image{GCSURI: req.StartFrameURI, MIMEType: guessMIMEType(req.StartFrameURI)}
	}

	config := g.config(req, agentName)

	log.Info().Str("output", config.OutputGCSURI).Msg("generating a video")
	start := time.Now()

	op, err := g.Models.GenerateVideos(ctx, model, req.Prompt, image, config)
	if err != nil {
		return media.Result{}, fmt.Errorf("generation: submit video: %w", err)
	}
	if op == nil {
		return media.Result{}, fmt.Errorf("generation: submit video: %w", operation.ErrNilHandle)
	}

	poller := operation.Poller[*genai.GeneratedVideo]{
		Interval: g.PollInterval,
		Sleep:    g.Sleep,
		Refresh: func(ctx context.Context, h operation.Handle[*genai.GeneratedVideo]) (operation.Handle[*genai.GeneratedVideo], error) {
			next, err := g.Operations.GetVideosOperation(ctx, h.(videoHandle).op, nil)
			if err != nil {
				return nil, err
			}
			return videoHandle{op: next}, nil
		},
		OnPoll: func(polls int, elapsed time.Duration) {
			log.Debug().Int("polls", polls).Dur("elapsed", elapsed).Msg("video operation pending")
		},
	}

	out, err := poller.Wait(ctx, videoHandle{op: op})
	if err != nil {
		return media.Result{}, fmt.Errorf("generation: wait for video: %w", err)
	}

	result := videoResult(invocation, out)

	if result.Error != "" {
		log.Error().Str("state", out.State.String()).Msg(result.Error)
	} else {
		log.Info().
			Int("seconds", int(time.Since(start).Seconds())).
			Str("url", blobstore.PublicURL(result.URI)).
			Msg("video generated")
	}

	log.Info().Str("result", result.String()).Msg("video generation result")

	return result, nil
}

func (g *VideoGenerator) config(req VideoRequest, agentName string) *genai.GenerateVideosConfig {
	ar := req.AspectRatio
	if ar == "" {
		ar = media.DefaultAspectRatio
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = media.DefaultDuration
	}

	person := g.PersonGeneration
	if person == "" {
		person = DefaultPersonGeneration
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      string(ar),
		NumberOfVideos:   videosPerRequest,
		Seed:             genai.Ptr[int32](videoSeed),
		DurationSeconds:  genai.Ptr(int32(duration)),
		PersonGeneration: person,
	}

	if g.OutputPrefix != "" {
		config.OutputGCSURI = strings.TrimSuffix(g.OutputPrefix, "/") + "/" + agentName
	}

	if req.EndFrameURI != "" {
		config.LastFrame = &genai.Image{GCSURI: req.EndFrameURI, MIMEType: guessMIMEType(req.EndFrameURI)}
	}

	return config
}

// videoResult maps a finished operation to a media result.
func videoResult(invocation string, out operation.Outcome[*genai.GeneratedVideo]) media.Result {
	empty := media.Failed(fmt.Sprintf("[%s] %s", invocation, media.EmptyGeneration))

	switch out.State {
	case operation.DoneError:
		b, err := json.MarshalIndent(out.Err, "", "  ")
		if err != nil {
			return media.Failed(fmt.Sprint(out.Err))
		}
		return media.Failed(string(b))
	case operation.DoneOK:
		for _, v := range out.Items {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				return media.OK(v.Video.URI)
			}
		}
		return empty
	default:
		return empty
	}
}

// videoHandle adapts a genai operation to operation.Handle.
type videoHandle struct {
	op *genai.GenerateVideosOperation
}

func (h videoHandle) Done() bool { return h.op != nil && h.op.Done }

func (h videoHandle) Err() map[string]any {
	if h.op == nil {
		return nil
	}
	return h.op.Error
}

func (h videoHandle) Items() []*genai.GeneratedVideo {
	if h.op == nil || h.op.Response == nil {
		return nil
	}
	return h.op.Response.GeneratedVideos
}
