package artifact

import (
	"context"
	"strings"

	"github.com/germanamz/director/pkg/blobstore"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Downloader fetches stored media.
type Downloader interface {
	Download(ctx context.Context, uri string) (blobstore.Blob, error)
}

// Extractor attaches media referenced by tool responses to the turn's Set.
type Extractor struct {
	Store Downloader
}

// AfterTool inspects a finished tool call. When the response carries a
// gs:// "uri", the object is downloaded and added to the context's Set
// under a fresh name. Responses that do not coerce to a mapping are ignored,
// and download failures are logged without failing the call.
func (e *Extractor) AfterTool(ctx context.Context, call content.ToolCall, result content.ToolResult) {
	if result.IsError {
		return
	}

	log := zerolog.Ctx(ctx).With().Str("component", "artifact").Str("tool", call.Name).Logger()

	resp, ok := media.Coerce(result.Content)
	if !ok {
		return
	}

	uri, _ := resp["uri"].(string)
	if !blobstore.IsStorageURI(uri) {
		return
	}

	set := FromContext(ctx)
	if set == nil {
		log.Debug().Str("uri", uri).Msg("no artifact set on context")
		return
	}

	blob, err := e.Store.Download(ctx, uri)
	if err != nil {
		log.Warn().Err(err).Str("uri", uri).Msg("artifact download failed")
		return
	}

	a := Artifact{
		Name:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Data:     blob.Data,
		MIMEType: blob.MIMEType,
	}
	if err := set.Add(a); err != nil {
		log.Warn().Err(err).Msg("artifact not saved")
		return
	}

	log.Info().Str("uri", uri).Str("artifact", a.Name).Str("mime_type", a.MIMEType).Msg("artifact saved")
}
