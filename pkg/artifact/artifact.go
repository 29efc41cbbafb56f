// Package artifact collects the media produced during a turn. A Set travels on
// the context; the Extractor fills it from tool responses that point at
// stored media.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/germanamz/director/pkg/blobstore"
)

// ErrExists is returned when adding an artifact whose name is already taken.
var ErrExists = errors.New("artifact: name already exists")

// Artifact is a named media object attached to the turn.
type Artifact struct {
	Name     string
	Data     []byte
	MIMEType string
}

// FileName returns the artifact name with an extension matching its type.
func (a Artifact) FileName() string {
	return a.Name + blobstore.ExtensionFor(a.MIMEType)
}

// Set is an append-only, insertion-ordered collection of artifacts. It is
// safe for concurrent use.
type Set struct {
	mu    sync.Mutex
	items map[string]Artifact
	order []string
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{items: make(map[string]Artifact)}
}

// Add stores a. Names are never overwritten.
func (s *Set) Add(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[a.Name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, a.Name)
	}

	s.items[a.Name] = a
	s.order = append(s.order, a.Name)

	return nil
}

// Get returns the artifact stored under name.
func (s *Set) Get(name string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[name]
	return a, ok
}

// Len returns the number of artifacts.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// List returns the artifacts in the order they were added.
func (s *Set) List() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Artifact, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.items[name])
	}

	return out
}

// SaveTo writes every artifact into dir and returns the written paths.
func (s *Set) SaveTo(dir string) ([]string, error) {
	return Save(dir, s.List())
}

// Save writes items into dir and returns the written paths.
func Save(dir string, items []Artifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", dir, err)
	}

	paths := make([]string, 0, len(items))

	for _, a := range items {
		p := filepath.Join(dir, a.FileName())
		if err := os.WriteFile(p, a.Data, 0o600); err != nil {
			return paths, fmt.Errorf("artifact: write %s: %w", p, err)
		}
		paths = append(paths, p)
	}

	return paths, nil
}

type setCtxKey struct{}

// WithSet returns a context carrying s.
func WithSet(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, setCtxKey{}, s)
}

// FromContext returns the Set carried by ctx, or nil.
func FromContext(ctx context.Context) *Set {
	s, _ := ctx.Value(setCtxKey{}).(*Set)
	return s
}
