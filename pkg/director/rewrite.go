package director

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/director/pkg/agent"
	"github.com/germanamz/director/pkg/chats/chat"
	"github.com/germanamz/director/pkg/chats/content"
	"github.com/germanamz/director/pkg/chats/role"
)

// ImageURIPrefix introduces an uploaded image in rewritten user messages.
const ImageURIPrefix = "IMAGE_URI: "

// Uploader stores inline media and returns its storage URI.
type Uploader interface {
	Upload(ctx context.Context, owner string, data []byte, mimeType string) (string, error)
}

// RewriteInlineImages returns an effect that uploads the inline images of the
// most recent user message before each model call and replaces each of them
// in place with an "IMAGE_URI: <uri>" text part. Uploads are filed under the
// running agent's name.
func RewriteInlineImages(store Uploader) agent.Effect {
	return agent.BeforeComplete(func(ctx context.Context, ic agent.IterationContext) error {
		return rewriteInlineImages(ctx, ic.Chat, store, ic.AgentName)
	})
}

func rewriteInlineImages(ctx context.Context, c *chat.Chat, store Uploader, owner string) error {
	idx := c.LastIndex(role.User)
	if idx < 0 {
		return nil
	}

	msg := c.At(idx)
	rewritten := msg.Clone()
	changed := false

	for i, p := range msg.Parts {
		img, ok := p.(content.Image)
		if !ok || !img.Inline() || !strings.HasPrefix(img.MediaType, "image/") {
			continue
		}

		uri, err := store.Upload(ctx, owner, img.Data, img.MediaType)
		if err != nil {
			return fmt.Errorf("director: upload inline image: %w", err)
		}

		rewritten.Parts[i] = content.Text{Text: ImageURIPrefix + uri}
		changed = true
	}

	if changed {
		c.Replace(idx, rewritten)
	}

	return nil
}
