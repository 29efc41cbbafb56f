package engine

import (
	"github.com/germanamz/director/pkg/modeladapter"
	"github.com/germanamz/director/pkg/modeladapter/usage"
)

// StageUsage is the token spend of one stage's model.
type StageUsage struct {
	Stage  string
	Model  string
	Tokens usage.TokenCount
}

type stageUsage struct {
	stage     string
	completer modeladapter.Completer
}

// Usage reports the tokens each stage spent on behalf of invocation, in
// pipeline order. An empty invocation reports the engine's lifetime totals.
// Stages whose completer does not track usage are omitted.
func (e *Engine) Usage(invocation string) []StageUsage {
	var out []StageUsage

	for _, su := range e.usage {
		ur, ok := su.completer.(modeladapter.UsageReporter)
		if !ok {
			continue
		}
		tr := ur.UsageTracker()
		if tr == nil {
			continue
		}

		tokens := tr.Total()
		if invocation != "" {
			tokens = tr.Invocation(invocation)
		}

		out = append(out, StageUsage{Stage: su.stage, Model: ur.ModelName(), Tokens: tokens})
	}

	return out
}

// TotalTokens sums the tokens of every stage.
func TotalTokens(stages []StageUsage) usage.TokenCount {
	var total usage.TokenCount
	for _, s := range stages {
		total = total.Plus(s.Tokens)
	}
	return total
}
