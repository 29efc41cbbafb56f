package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/germanamz/director/pkg/artifact"
	"github.com/germanamz/director/pkg/director"
	"github.com/germanamz/director/pkg/engine"
	"github.com/germanamz/director/pkg/media"
	"github.com/germanamz/director/pkg/tools/mcpserver"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]

	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error

	switch cmd {
	case "run":
		err = runCmd(args)
	case "mcp":
		err = mcpCmd(args)
	case "check":
		err = checkCmd(args)
	case "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: director [command] [flags]

Commands:
  run     Direct a video from a prompt (default)
  mcp     Serve generate_image and generate_video over MCP stdio
  check   Validate the configuration and print the resolved settings

Run "director <command> -h" for the flags of a command.
`)
}

// commonFlags are shared by every command.
type commonFlags struct {
	config  string
	env     string
	verbose bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "path to configuration file (default: director.yaml, else the environment)")
	fs.StringVar(&c.env, "env", ".env", "path to .env file (ignored if missing)")
	fs.BoolVar(&c.verbose, "verbose", false, "log debug output")
}

// setup loads the environment and the configuration and returns a context
// carrying the logger.
func (c *commonFlags) setup() (context.Context, context.CancelFunc, engine.Config, error) {
	if err := loadDotEnv(c.env); err != nil {
		return nil, nil, engine.Config{}, err
	}

	cfg, err := loadConfig(c.config)
	if err != nil {
		return nil, nil, engine.Config{}, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = newLogger(os.Stderr, c.verbose).WithContext(ctx)

	return ctx, cancel, cfg, nil
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	var common commonFlags
	common.register(fs)

	prompt := fs.String("prompt", "", "what the video is about (default: the remaining arguments)")
	ratio := fs.String("aspect-ratio", "", "16:9 or 9:16 (default: from config)")
	out := fs.String("out", "artifacts", "directory the turn's artifacts are saved to")
	var images stringList
	fs.Var(&images, "image", "reference image file (repeatable)")

	_ = fs.Parse(args)

	text := *prompt
	if text == "" {
		text = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("a prompt is required")
	}

	var ar media.AspectRatio
	if *ratio != "" {
		parsed, err := media.ParseAspectRatio(*ratio)
		if err != nil {
			return err
		}
		ar = parsed
	}

	refs, err := loadImages(images)
	if err != nil {
		return err
	}

	ctx, cancel, cfg, err := common.setup()
	if err != nil {
		return err
	}
	defer cancel()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	sub := eng.Events().Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(os.Stderr, sub.C)
	}()

	sess := eng.NewSession()
	turn, err := sess.Send(ctx, director.Request{Prompt: text, Images: refs, AspectRatio: ar})

	eng.Events().Unsubscribe(sub)
	<-done

	if err != nil {
		return err
	}

	for _, su := range eng.Usage(turn.InvocationID) {
		zerolog.Ctx(ctx).Debug().
			Str("stage", su.Stage).
			Str("model", su.Model).
			Int("input_tokens", su.Tokens.InputTokens).
			Int("output_tokens", su.Tokens.OutputTokens).
			Msg("token usage")
	}

	fmt.Println(renderReport(turn.Markdown(), isTerminal(os.Stdout)))

	paths, err := artifact.Save(*out, turn.Artifacts)
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("Saved %d artifacts to %s", len(paths), *out)))
	}

	return nil
}

func mcpCmd(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)

	var common commonFlags
	common.register(fs)
	_ = fs.Parse(args)

	ctx, cancel, cfg, err := common.setup()
	if err != nil {
		return err
	}
	defer cancel()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	srv := mcpserver.New("director", version)
	srv.Register(eng.GenerationTools().Tools()...)

	zerolog.Ctx(ctx).Info().Msg("serving generation tools on stdio")

	return srv.ServeStdio(ctx)
}

func checkCmd(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)

	var common commonFlags
	common.register(fs)
	_ = fs.Parse(args)

	if err := loadDotEnv(common.env); err != nil {
		return err
	}

	cfg, err := loadConfig(common.config)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Print(describeConfig(cfg))
	fmt.Println(okStyle.Render("✓ configuration is valid"))

	return nil
}
