package blobstore

import (
	"context"
	"fmt"
	"path"
	"sync"
)

var _ Store = (*Memory)(nil)

type memObject struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store for tests and dry runs. It is safe for
// concurrent use.
type Memory struct {
	bucket string

	mu        sync.Mutex
	objects   map[string]memObject
	uploads   int
	downloads int
}

// NewMemory creates an empty store that reports URIs in the given bucket.
func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: make(map[string]memObject)}
}

// Upload records data under its content-addressed name.
func (m *Memory) Upload(_ context.Context, owner string, data []byte, mimeType string) (string, error) {
	name := ObjectName(owner, data, mimeType)
	uri := URI(m.bucket, name)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads++
	m.objects[uri] = memObject{data: append([]byte(nil), data...), contentType: BaseType(mimeType)}

	return uri, nil
}

// Put stores an object at an exact URI, as an external writer would.
func (m *Memory) Put(uri string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[uri] = memObject{data: append([]byte(nil), data...), contentType: contentType}
}

// Download returns a stored object.
func (m *Memory) Download(_ context.Context, uri string) (Blob, error) {
	_, object, err := ParseURI(uri)
	if err != nil {
		return Blob{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloads++

	obj, ok := m.objects[uri]
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}

	return Blob{
		Name:     path.Base(object),
		Data:     append([]byte(nil), obj.data...),
		MIMEType: DetectMIMEType(object, obj.contentType, obj.data),
	}, nil
}

// Uploads returns how many uploads were made.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Downloads returns how many downloads were attempted.
func (m *Memory) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}
