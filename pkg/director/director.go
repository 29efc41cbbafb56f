// Package director coordinates the video pipeline. A turn runs the story
// stage once, then the storyboard and video stages for every shot in order.
// Stages exchange media as gs:// URIs; text shown to the user is rewritten to
// browser URLs.
package director

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/germanamz/director/pkg/agent"
	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/artifact"
	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/message"
	"github.com/germanamz/director/pkg/chats/role"
	"github.com/germanamz/director/pkg/delegate"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage agent names. Uploads made by a stage are filed under its name.
const (
	StoryAgent      = "story_agent"
	StoryboardAgent = "storyboard_agent"
	VideoAgent      = "video_agent"

	// SubmitStoryboardTool ends the storyboard stage.
	SubmitStoryboardTool = "submit_storyboard"
)

// Config wires the coordinator. Story, Storyboard, Video, Store, ImageTool
// and VideoAgent are required.
type Config struct {
	Store blobstore.Store

	Story      modeladapter.Completer
	Storyboard modeladapter.Completer
	Video      modeladapter.Completer

	// ImageTool is generate_image, used by the storyboard stage.
	ImageTool toolbox.Tool
	// VideoAgent wraps generate_video for the video stage.
	VideoAgent *delegate.ToolAgent

	// StoryTools are extra tools offered to the story stage.
	StoryTools *toolbox.ToolBox
	// WebTools are offered to the storyboard stage.
	WebTools *toolbox.ToolBox

	Prompts       Prompts
	MaxIterations int
	StageTimeout  time.Duration

	// OnStory and OnShot, if set, observe progress within a turn.
	OnStory func(ctx context.Context, story Story)
	OnShot  func(ctx context.Context, result ShotResult)
}

// Request is one user turn.
type Request struct {
	Prompt      string
	Images      []content.Image
	AspectRatio media.AspectRatio
}

// Director runs turns. It holds no per-turn state and may run turns
// sequentially for any number of sessions.
type Director struct {
	cfg         Config
	extractor   *artifact.Extractor
	storySchema []byte
}

// New validates cfg and creates a Director. Empty prompts fall back to the
// embedded defaults.
func New(cfg Config) (*Director, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("director: store is required")
	case cfg.Story == nil || cfg.Storyboard == nil || cfg.Video == nil:
		return nil, errors.New("director: a completer is required for every stage")
	case cfg.ImageTool.Handler == nil:
		return nil, errors.New("director: image tool is required")
	case cfg.VideoAgent == nil:
		return nil, errors.New("director: video agent is required")
	}

	defaults := DefaultPrompts()
	if cfg.Prompts.Story == "" {
		cfg.Prompts.Story = defaults.Story
	}
	if cfg.Prompts.Storyboard == "" {
		cfg.Prompts.Storyboard = defaults.Storyboard
	}
	if cfg.Prompts.Video == "" {
		cfg.Prompts.Video = defaults.Video
	}

	schema, err := StorySchema()
	if err != nil {
		return nil, err
	}

	return &Director{
		cfg:         cfg,
		extractor:   &artifact.Extractor{Store: cfg.Store},
		storySchema: schema,
	}, nil
}

// Run executes one turn. Every turn collects its artifacts into a fresh Set.
// Stage failures that the models can recover from
// are recorded on the shot; transport errors abort the turn.
func (d *Director) Run(ctx context.Context, req Request) (Turn, error) {
	invocation := agentctx.InvocationIDFromContext(ctx)
	if invocation == "" {
		invocation = strings.ReplaceAll(uuid.NewString(), "-", "")
		ctx = agentctx.WithInvocationID(ctx, invocation)
	}

	set := artifact.NewSet()
	ctx = artifact.WithSet(ctx, set)

	if req.AspectRatio == "" {
		req.AspectRatio = media.DefaultAspectRatio
	}

	log := zerolog.Ctx(ctx).With().Str("component", "director").Str("invocation", invocation).Logger()
	ctx = log.WithContext(ctx)

	story, err := d.runStory(ctx, req)
	if err != nil {
		return Turn{}, err
	}

	log.Info().Str("title", story.Title).Int("shots", len(story.Shots)).Msg("story ready")
	if d.cfg.OnStory != nil {
		d.cfg.OnStory(ctx, story)
	}

	turn := Turn{InvocationID: invocation, Story: story}

	var previousLastFrame string

	for _, shot := range story.Shots {
		result := ShotResult{Shot: shot}

		board, failure, err := d.runStoryboard(ctx, story, shot, previousLastFrame, req.AspectRatio)
		if err != nil {
			return Turn{}, fmt.Errorf("director: shot %d: %w", shot.Number, err)
		}

		if failure != "" {
			result.Error = failure
			d.finishShot(ctx, &turn, result)
			log.Warn().Int("shot", shot.Number).Str("error", failure).Msg("storyboard failed")
			continue
		}

		result.Storyboard = board
		previousLastFrame = board.LastFrameURI

		video, err := d.runVideo(ctx, shot, board, req.AspectRatio)
		if err != nil {
			return Turn{}, fmt.Errorf("director: shot %d: %w", shot.Number, err)
		}

		result.VideoURI = video.URI
		result.Error = video.Error
		d.finishShot(ctx, &turn, result)

		log.Info().Int("shot", shot.Number).Str("video", video.URI).Str("error", video.Error).Msg("shot finished")
	}

	turn.Artifacts = set.List()

	return turn, nil
}

func (d *Director) finishShot(ctx context.Context, turn *Turn, result ShotResult) {
	turn.Shots = append(turn.Shots, result)
	if d.cfg.OnShot != nil {
		d.cfg.OnShot(ctx, result)
	}
}

func (d *Director) stageOptions(name string, extra agent.Options) agent.Options {
	extra.MaxIterations = d.cfg.MaxIterations
	extra.Middleware = append([]agent.Middleware{
		agent.Recovery(),
		agent.Logger(name),
		agent.Timeout(d.cfg.StageTimeout),
	}, extra.Middleware...)
	return extra
}

func (d *Director) runStory(ctx context.Context, req Request) (Story, error) {
	a := agent.New(StoryAgent, "Story Agent", d.cfg.Prompts.Story, d.cfg.Story, d.stageOptions(StoryAgent, agent.Options{
		ResponseSchema: d.storySchema,
		Effects:        []agent.Effect{RewriteInlineImages(d.cfg.Store)},
		Middleware: []agent.Middleware{agent.OutputGuardrail(func(m message.Message) error {
			_, err := ParseStory(m.TextContent())
			return err
		})},
	}))
	if d.cfg.StoryTools != nil {
		a.AddToolBoxes(d.cfg.StoryTools)
	}

	a.Init()

	parts := []content.Part{content.Text{Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, img)
	}
	a.Chat().Append(message.New("user", role.User, parts...))

	reply, err := a.Run(ctx)
	if err != nil {
		return Story{}, fmt.Errorf("director: %s: %w", StoryAgent, err)
	}

	return ParseStory(reply.TextContent())
}

// runStoryboard returns the submitted storyboard, or a failure text when the
// stage ended without one.
func (d *Director) runStoryboard(ctx context.Context, story Story, shot Shot, previousLastFrame string, ar media.AspectRatio) (Storyboard, string, error) {
	var board Storyboard

	submit, err := submitTool(&board)
	if err != nil {
		return Storyboard{}, "", err
	}

	tb := toolbox.New()
	tb.Register(d.cfg.ImageTool, submit)
	if d.cfg.WebTools != nil {
		tb.Merge(d.cfg.WebTools)
	}

	a := agent.New(StoryboardAgent, "Storyboard Agent", d.cfg.Prompts.Storyboard, d.cfg.Storyboard, d.stageOptions(StoryboardAgent, agent.Options{
		Effects:    []agent.Effect{agent.RepeatGuard(3)},
		ToolHooks:  []agent.ToolHook{d.extractor},
		StopOnTool: SubmitStoryboardTool,
	}))
	a.AddToolBoxes(tb)
	a.Init()
	a.Chat().Append(message.NewText("user", role.User, storyboardRequest(story, shot, previousLastFrame, ar)))

	reply, err := a.Run(ctx)
	switch {
	case errors.Is(err, agent.ErrMaxIterations):
		return Storyboard{}, fmt.Sprintf("%s gave up after %d iterations", StoryboardAgent, d.cfg.MaxIterations), nil
	case err != nil:
		return Storyboard{}, "", fmt.Errorf("%s: %w", StoryboardAgent, err)
	case board.VideoPrompt == "":
		return Storyboard{}, fmt.Sprintf("%s did not submit a storyboard: %s", StoryboardAgent, strings.TrimSpace(reply.TextContent())), nil
	}

	return board, "", nil
}

func (d *Director) runVideo(ctx context.Context, shot Shot, board Storyboard, ar media.AspectRatio) (media.Result, error) {
	tool := d.cfg.VideoAgent.Tool()

	tb := toolbox.New()
	tb.Register(tool)

	a := agent.New(VideoAgent, "Video Agent", d.cfg.Prompts.Video, d.cfg.Video, d.stageOptions(VideoAgent, agent.Options{
		ToolHooks:  []agent.ToolHook{d.extractor},
		StopOnTool: tool.Name,
	}))
	a.AddToolBoxes(tb)
	a.Init()
	a.Chat().Append(message.NewText("user", role.User, videoRequest(shot, board, ar)))

	reply, err := a.Run(ctx)
	switch {
	case errors.Is(err, agent.ErrMaxIterations):
		return media.Failed(fmt.Sprintf("%s gave up after %d iterations", VideoAgent, d.cfg.MaxIterations)), nil
	case err != nil:
		return media.Result{}, fmt.Errorf("%s: %w", VideoAgent, err)
	}

	return videoOutcome(reply), nil
}

// videoOutcome reads the video result from the message that ended the video
// stage.
func videoOutcome(reply message.Message) media.Result {
	results := reply.ToolResults()
	if len(results) == 0 {
		return media.Failed(fmt.Sprintf("%s did not call the video tool: %s", VideoAgent, strings.TrimSpace(reply.TextContent())))
	}

	out := results[len(results)-1].Content

	m, ok := media.Coerce(out)
	if !ok {
		return media.Failed(out)
	}

	uri, _ := m["uri"].(string)
	msg, _ := m["error"].(string)

	return media.Result{URI: uri, Error: msg}.Normalize()
}
