package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/artifact"
	"github.com/germanamz/director/pkg/director"
	"github.com/germanamz/director/pkg/media"
	"github.com/google/uuid"
)

type sessionIDKey struct{}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// Session is one user conversation with the director. Each turn reports its
// own artifacts; the session keeps every turn's artifacts in one Set. Only
// one Send call may be active at a time.
type Session struct {
	id        string
	director  *director.Director
	events    *EventBus
	artifacts *artifact.Set
	ratio     media.AspectRatio
	usage     func(invocation string) []StageUsage

	mu     sync.Mutex
	active bool
	turns  []director.Turn
}

func newSession(id string, d *director.Director, events *EventBus, ratio media.AspectRatio, usage func(string) []StageUsage) *Session {
	return &Session{
		id:        id,
		director:  d,
		events:    events,
		artifacts: artifact.NewSet(),
		ratio:     ratio,
		usage:     usage,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Artifacts returns the artifacts of every finished turn.
func (s *Session) Artifacts() *artifact.Set { return s.artifacts }

// Turns returns the finished turns in order.
func (s *Session) Turns() []director.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]director.Turn(nil), s.turns...)
}

// Send runs one director turn for req. An empty aspect ratio takes the
// configured default.
func (s *Session) Send(ctx context.Context, req director.Request) (director.Turn, error) {
	if err := s.acquire(); err != nil {
		return director.Turn{}, err
	}
	defer s.release()

	if req.AspectRatio == "" {
		req.AspectRatio = s.ratio
	}

	invocation := agentctx.InvocationIDFromContext(ctx)
	if invocation == "" {
		invocation = strings.ReplaceAll(uuid.NewString(), "-", "")
		ctx = agentctx.WithInvocationID(ctx, invocation)
	}

	ctx = withSessionID(ctx, s.id)

	s.publish(invocation, EventTurnStart, req)

	turn, err := s.director.Run(ctx, req)
	if err != nil {
		s.publish(invocation, EventError, err)
		return director.Turn{}, err
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	for _, a := range turn.Artifacts {
		_ = s.artifacts.Add(a) // names are unique per artifact
	}

	s.publish(invocation, EventTurnEnd, turn)

	if s.usage != nil {
		s.publish(invocation, EventUsage, s.usage(invocation))
	}

	return turn, nil
}

func (s *Session) publish(invocation string, kind EventKind, data any) {
	s.events.Publish(Event{
		Kind:       kind,
		SessionID:  s.id,
		Invocation: invocation,
		Timestamp:  time.Now(),
		Data:       data,
	})
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("engine: session %s: another Send is already active", s.id)
	}
	s.active = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}
