// Package blobstore stores generated and user-supplied media in object
// storage and resolves storage URIs back to bytes. Media moves between
// pipeline stages as gs:// URIs; only this package touches the bytes.
package blobstore

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// Scheme prefixes every storage URI.
	Scheme = "gs://"
	// PublicPrefix is the authenticated browser endpoint for stored objects.
	PublicPrefix = "https://storage.mtls.cloud.google.com/"
	// DefaultMIMEType is used when nothing better is known.
	DefaultMIMEType = "application/octet-stream"
)

var (
	// ErrNotStorageURI is returned for URIs without the gs:// scheme or
	// without a bucket and object.
	ErrNotStorageURI = errors.New("blobstore: not a storage uri")
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("blobstore: object not found")
)

// Blob is a downloaded object.
type Blob struct {
	Name     string
	Data     []byte
	MIMEType string
}

// Store uploads and downloads media.
type Store interface {
	// Upload stores data under the owner's asset folder and returns its
	// gs:// URI. Identical bytes map to the same object.
	Upload(ctx context.Context, owner string, data []byte, mimeType string) (string, error)
	// Download fetches the object behind a gs:// URI.
	Download(ctx context.Context, uri string) (Blob, error)
}

// IsStorageURI reports whether s uses the storage scheme.
func IsStorageURI(s string) bool { return strings.HasPrefix(s, Scheme) }

// ParseURI splits a gs:// URI into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrNotStorageURI, uri)
	}

	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrNotStorageURI, uri)
	}

	return bucket, object, nil
}

// URI builds a gs:// URI.
func URI(bucket, object string) string { return Scheme + bucket + "/" + object }

// PublicURL returns the browser URL of a storage URI. Other strings are
// returned unchanged.
func PublicURL(uri string) string {
	if rest, ok := strings.CutPrefix(uri, Scheme); ok {
		return PublicPrefix + rest
	}
	return uri
}

// RewriteForDisplay replaces every storage URI in text with its browser URL.
// URIs exchanged between stages must keep the gs:// form.
func RewriteForDisplay(text string) string {
	return strings.ReplaceAll(text, Scheme, PublicPrefix)
}

// ObjectName returns the content-addressed object name for an upload:
// assets/<owner>/<md5 of data><ext>.
func ObjectName(owner string, data []byte, mimeType string) string {
	sum := md5.Sum(data) //nolint:gosec // content addressing, not security
	return path.Join("assets", cleanOwner(owner), hex.EncodeToString(sum[:])+ExtensionFor(mimeType))
}

func cleanOwner(owner string) string {
	owner = strings.Trim(strings.ReplaceAll(owner, "/", "_"), ". ")
	if owner == "" {
		return "shared"
	}
	return owner
}

var preferredExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"text/plain": ".txt",
}

var preferredType = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".txt":  "text/plain",
}

// ExtensionFor returns a file extension for a MIME type, or "" when unknown.
func ExtensionFor(mimeType string) string {
	mt := BaseType(mimeType)
	if ext, ok := preferredExt[mt]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if m := mimetype.Lookup(mt); m != nil {
		return m.Extension()
	}
	return ""
}

// DetectMIMEType picks a media type for a downloaded object: from the file
// name's extension, then the stored content type, then the bytes, then
// DefaultMIMEType.
func DetectMIMEType(name, contentType string, data []byte) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if mt, ok := preferredType[ext]; ok {
			return mt
		}
		if mt := BaseType(mime.TypeByExtension(ext)); mt != "" {
			return mt
		}
	}
	if mt := BaseType(contentType); mt != "" && mt != DefaultMIMEType {
		return mt
	}
	if len(data) > 0 {
		if mt := BaseType(mimetype.Detect(data).String()); mt != "" {
			return mt
		}
	}
	return DefaultMIMEType
}

// BaseType strips parameters such as "; charset=utf-8" from a media type.
func BaseType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(mt)
}
