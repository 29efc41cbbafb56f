package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/delegate"
	"github.com/germanamz/director/pkg/director"
	"github.com/germanamz/director/pkg/generation"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/tools/mcpclient"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/germanamz/director/pkg/tools/web"
)

// VideoToolAgent is the name under which the video stage sees the
// generate_video tool agent.
const VideoToolAgent = "video_generation_agent"

// Models is the part of the genai Models service the generators use.
type Models interface {
	generation.ContentGenerator
	generation.VideoSubmitter
}

// Option overrides a dependency the engine would otherwise build from
// configuration.
type Option func(*options)

type options struct {
	store      blobstore.Store
	models     Models
	operations generation.OperationGetter
}

// WithStore replaces the GCS store.
func WithStore(s blobstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithModels replaces the genai client.
func WithModels(m Models, ops generation.OperationGetter) Option {
	return func(o *options) {
		o.models = m
		o.operations = ops
	}
}

// Engine is the composition root: it builds the blob store, the generation
// adapters and tools, the stage completers and the director from
// configuration.
type Engine struct {
	cfg         Config
	events      *EventBus
	store       blobstore.Store
	closeStore  func() error
	generation  *toolbox.ToolBox
	mcpClients  []*mcpclient.Client
	director    *director.Director
	aspectRatio media.AspectRatio
	usage       []stageUsage

	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int
}

// New validates cfg and assembles every component. MCP servers are
// connected and their tools offered to the story stage.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:      cfg,
		events:   NewEventBus(),
		store:    o.store,
		sessions: make(map[string]*Session),
	}

	e.aspectRatio, _ = media.ParseAspectRatio(cfg.Generation.AspectRatio)

	if e.store == nil {
		gcs, err := blobstore.NewGCS(ctx, cfg.Storage.Bucket)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.store = gcs
		e.closeStore = gcs.Close
	}

	if o.models == nil {
		client, err := generation.NewClient(ctx, generation.ClientConfig{
			Backend:  cfg.GenAI.Backend,
			Project:  cfg.GenAI.Project,
			Location: cfg.GenAI.Location,
			APIKey:   cfg.GenAI.APIKey,
		})
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("engine: %w", err)
		}
		o.models = client.Models
		o.operations = client.Operations
	}

	imageTool, videoTool, err := e.buildGenerationTools(cfg, o)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	storyTools, err := e.connectMCP(ctx, cfg.MCPServers)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	dcfg, err := e.directorConfig(cfg, o.models, imageTool, videoTool)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	dcfg.StoryTools = storyTools

	e.director, err = director.New(dcfg)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	return e, nil
}

func (e *Engine) buildGenerationTools(cfg Config, o options) (toolbox.Tool, toolbox.Tool, error) {
	interval, err := cfg.pollInterval()
	if err != nil {
		return toolbox.Tool{}, toolbox.Tool{}, err
	}

	images := &generation.ImageGenerator{
		Models:   o.models,
		Store:    e.store,
		Model:    cfg.GenAI.ImageModel,
		Attempts: cfg.Generation.ImageAttempts,
	}

	videos := &generation.VideoGenerator{
		Models:           o.models,
		Operations:       o.operations,
		Model:            cfg.GenAI.VideoModel,
		OutputPrefix:     cfg.Storage.VideoPrefix,
		PersonGeneration: cfg.Generation.PersonGeneration,
		PollInterval:     interval,
	}

	imageTool, err := generation.ImageTool(images)
	if err != nil {
		return toolbox.Tool{}, toolbox.Tool{}, fmt.Errorf("engine: %w", err)
	}

	videoTool, err := generation.VideoTool(videos)
	if err != nil {
		return toolbox.Tool{}, toolbox.Tool{}, fmt.Errorf("engine: %w", err)
	}

	e.generation = toolbox.New()
	e.generation.Register(imageTool, videoTool)

	return imageTool, videoTool, nil
}

func (e *Engine) connectMCP(ctx context.Context, servers []mcpclient.ServerConfig) (*toolbox.ToolBox, error) {
	if len(servers) == 0 {
		return nil, nil
	}

	tb := toolbox.New()

	for _, sc := range servers {
		client, err := mcpclient.Connect(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("engine: mcp %q: %w", sc.Name, err)
		}
		e.mcpClients = append(e.mcpClients, client)

		tools, err := client.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: mcp %q: list tools: %w", sc.Name, err)
		}

		tb.Register(tools...)
	}

	return tb, nil
}

func (e *Engine) directorConfig(cfg Config, models Models, imageTool, videoTool toolbox.Tool) (director.Config, error) {
	stages := cfg.Gemini.Stages

	completers := make(map[string]modeladapter.Completer, 4)
	for _, stage := range []struct{ name, model string }{
		{director.StoryAgent, stages.Story},
		{director.StoryboardAgent, stages.Storyboard},
		{director.VideoAgent, stages.Video},
		{VideoToolAgent, stages.Delegate},
	} {
		c, err := buildCompleter(cfg.Gemini, cfg.stageModel(stage.model), models)
		if err != nil {
			return director.Config{}, err
		}
		completers[stage.name] = c
		e.usage = append(e.usage, stageUsage{stage: stage.name, completer: c})
	}
	story := completers[director.StoryAgent]
	storyboard := completers[director.StoryboardAgent]
	video := completers[director.VideoAgent]
	tools := completers[VideoToolAgent]

	prompts, err := director.LoadPrompts(cfg.PromptsDir)
	if err != nil {
		return director.Config{}, fmt.Errorf("engine: %w", err)
	}

	timeout, err := cfg.stageTimeout()
	if err != nil {
		return director.Config{}, err
	}

	dcfg := director.Config{
		Store:         e.store,
		Story:         story,
		Storyboard:    storyboard,
		Video:         video,
		ImageTool:     imageTool,
		VideoAgent:    delegate.New(VideoToolAgent, "Generates one video from a prompt and optional first and last frames.", videoTool, tools),
		Prompts:       prompts,
		MaxIterations: cfg.Agents.MaxIterations,
		StageTimeout:  timeout,
		OnStory: func(ctx context.Context, s director.Story) {
			e.publish(ctx, EventStoryReady, s)
		},
		OnShot: func(ctx context.Context, r director.ShotResult) {
			e.publish(ctx, EventShotDone, r)
		},
	}

	if cfg.Web.Enabled {
		tb, err := web.New(e.store).Tools()
		if err != nil {
			return director.Config{}, fmt.Errorf("engine: %w", err)
		}
		dcfg.WebTools = tb
	}

	return dcfg, nil
}

func (e *Engine) publish(ctx context.Context, kind EventKind, data any) {
	e.events.Publish(Event{
		Kind:       kind,
		SessionID:  sessionIDFromContext(ctx),
		Invocation: agentctx.InvocationIDFromContext(ctx),
		Timestamp:  time.Now(),
		Data:       data,
	})
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Store returns the blob store shared by every component.
func (e *Engine) Store() blobstore.Store { return e.store }

// GenerationTools returns generate_image and generate_video, for serving
// over MCP.
func (e *Engine) GenerationTools() *toolbox.ToolBox { return e.generation }

// AspectRatio is the configured default frame shape.
func (e *Engine) AspectRatio() media.AspectRatio { return e.aspectRatio }

// NewSession creates a new session.
func (e *Engine) NewSession() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := fmt.Sprintf("session-%d", e.nextID)

	s := newSession(id, e.director, e.events, e.aspectRatio, e.Usage)
	e.sessions[id] = s

	return s
}

// Session returns an existing session by ID.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// Close shuts down MCP clients and the store.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range e.mcpClients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.closeStore != nil {
		if err := e.closeStore(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
