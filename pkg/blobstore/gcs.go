package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

var _ Store = (*GCS)(nil)

// GCS is a Store backed by a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to Cloud Storage with application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("blobstore: bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: storage client: %w", err)
	}

	return &GCS{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket uploads go to.
func (g *GCS) Bucket() string { return g.bucket }

// Upload writes data to assets/<owner>/<md5><ext> in the bucket.
func (g *GCS) Upload(ctx context.Context, owner string, data []byte, mimeType string) (string, error) {
	name := ObjectName(owner, data, mimeType)

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = BaseType(mimeType)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blobstore: write %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blobstore: close %s: %w", name, err)
	}

	uri := URI(g.bucket, name)
	zerolog.Ctx(ctx).Debug().Str("component", "blobstore").Str("uri", uri).Int("bytes", len(data)).Msg("uploaded")

	return uri, nil
}

// Download reads the object behind a gs:// URI from any bucket.
func (g *GCS) Download(ctx context.Context, uri string) (Blob, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return Blob{}, err
	}

	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("blobstore: open %s: %w", uri, err)
	}
	defer r.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, fmt.Errorf("blobstore: read %s: %w", uri, err)
	}

	return Blob{
		Name:     path.Base(object),
		Data:     data,
		MIMEType: DetectMIMEType(object, r.Attrs.ContentType, data),
	}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
