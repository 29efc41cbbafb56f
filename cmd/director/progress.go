package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/director"
	"github.com/germanamz/director/pkg/engine"
)

// printProgress writes one status line per event until events is closed.
func printProgress(w io.Writer, events <-chan engine.Event) {
	var start time.Time

	for e := range events {
		if e.Kind == engine.EventTurnStart {
			start = e.Timestamp
		}

		if line := statusLine(e, e.Timestamp.Sub(start)); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// statusLine renders e for the user. Storage URIs are shown as browser URLs.
func statusLine(e engine.Event, elapsed time.Duration) string {
	return blobstore.RewriteForDisplay(eventLine(e, elapsed))
}

func eventLine(e engine.Event, elapsed time.Duration) string {
	stamp := dimStyle.Render(fmt.Sprintf("[%s]", fmtDuration(elapsed)))

	switch e.Kind {
	case engine.EventTurnStart:
		return stageStyle.Render("● Writing the story...")
	case engine.EventStoryReady:
		s, _ := e.Data.(director.Story)
		return fmt.Sprintf("%s Story %q with %d shots %s", okStyle.Render("✓"), s.Title, len(s.Shots), stamp)
	case engine.EventShotDone:
		r, _ := e.Data.(director.ShotResult)
		if r.VideoURI != "" {
			return fmt.Sprintf("%s Shot %d %s %s", okStyle.Render("✓"), r.Shot.Number, r.VideoURI, stamp)
		}
		return fmt.Sprintf("%s Shot %d failed: %s %s", errorStyle.Render("✗"), r.Shot.Number, r.Error, stamp)
	case engine.EventTurnEnd:
		t, _ := e.Data.(director.Turn)
		return fmt.Sprintf("%s %d of %d shots finished %s", okStyle.Render("●"), len(t.Videos()), len(t.Shots), stamp)
	case engine.EventUsage:
		stages, _ := e.Data.([]engine.StageUsage)
		total := engine.TotalTokens(stages)
		if total.Total() == 0 {
			return ""
		}
		per := make([]string, 0, len(stages))
		for _, su := range stages {
			if su.Tokens.Total() > 0 {
				per = append(per, fmt.Sprintf("%s %d", su.Stage, su.Tokens.Total()))
			}
		}
		return dimStyle.Render(fmt.Sprintf("Tokens: %d in, %d out (%s)", total.InputTokens, total.OutputTokens, strings.Join(per, ", ")))
	case engine.EventError:
		err, _ := e.Data.(error)
		return fmt.Sprintf("%s %v", errorStyle.Render("✗"), err)
	default:
		return ""
	}
}
