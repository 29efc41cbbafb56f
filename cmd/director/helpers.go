package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/engine"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// defaultConfigFile is used when -config is not given and the file exists.
const defaultConfigFile = "director.yaml"

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// resolveConfigPath returns the config file to use, or "" to configure from
// the environment. Priority: explicit flag, then director.yaml if it exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	return ""
}

func loadConfig(explicit string) (engine.Config, error) {
	path := resolveConfigPath(explicit)
	if path == "" {
		return engine.FromEnv(), nil
	}

	return engine.LoadConfig(path)
}

// newLogger writes human-readable logs to w.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// loadImages reads reference images from disk. Files that are not images
// are rejected.
func loadImages(paths []string) ([]content.Image, error) {
	images := make([]content.Image, 0, len(paths))

	for _, p := range paths {
		data, err := os.ReadFile(p) //nolint:gosec // path is an operator-supplied flag
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}

		mt := blobstore.DetectMIMEType(filepath.Base(p), "", data)
		if !strings.HasPrefix(mt, "image/") {
			return nil, fmt.Errorf("%s is not an image (%s)", p, mt)
		}

		images = append(images, content.Image{Data: data, MediaType: mt})
	}

	return images, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// renderReport renders Markdown for a terminal, or returns it unchanged.
func renderReport(md string, tty bool) string {
	if !tty {
		return md
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec // fd fits in int
		width = min(w, 120)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}

	out, err := r.Render(md)
	if err != nil {
		return md
	}

	return strings.TrimRight(out, "\n")
}

// fmtDuration formats a duration for display.
func fmtDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// describeConfig lists the resolved settings without secrets.
func describeConfig(cfg engine.Config) string {
	var b strings.Builder

	row := func(k, v string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", k)), v)
	}

	set := func(s string) string {
		if s == "" {
			return dimStyle.Render("(not set)")
		}
		return "set"
	}

	row("chat model", cfg.Gemini.Model)
	row("tool agent model", cfg.Gemini.Stages.Delegate)
	row("gemini api key", set(cfg.Gemini.APIKey))
	row("genai backend", cfg.GenAI.Backend)
	row("project", cfg.GenAI.Project)
	row("location", cfg.GenAI.Location)
	row("image model", cfg.GenAI.ImageModel)
	row("video model", cfg.GenAI.VideoModel)
	row("bucket", cfg.Storage.Bucket)
	row("video prefix", cfg.Storage.VideoPrefix)
	row("image attempts", fmt.Sprint(cfg.Generation.ImageAttempts))
	row("poll interval", cfg.Generation.PollInterval)
	row("max iterations", fmt.Sprint(cfg.Agents.MaxIterations))
	row("mcp servers", fmt.Sprint(len(cfg.MCPServers)))
	row("web tools", fmt.Sprint(cfg.Web.Enabled))

	return b.String()
}
