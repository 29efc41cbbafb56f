// Package web provides content tools that read pages and images from the
// public web. Fetched images are copied into the blob store so later stages
// can reference them by storage URI.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/germanamz/director/pkg/agentctx"
	"github.com/germanamz/director/pkg/tools/toolbox"
	"github.com/rs/zerolog"
)

// Uploader stores bytes and returns their storage URI.
type Uploader interface {
	Upload(ctx context.Context, owner string, data []byte, mimeType string) (string, error)
}

// ErrTooLarge is returned when a response body is over the size limit.
var ErrTooLarge = errors.New("web: response too large")

const (
	maxPageSize  = 4 << 20
	maxImageSize = 32 << 20
)

// Web holds the HTTP client shared by the content tools.
type Web struct {
	store      Uploader
	client     *http.Client
	pageLimit  int64
	imageLimit int64
}

// Option configures a Web.
type Option func(*Web)

// WithClient replaces the default client, which refuses private addresses.
func WithClient(c *http.Client) Option {
	return func(w *Web) { w.client = c }
}

// WithMaxImageSize caps the bytes read_web_image accepts.
func WithMaxImageSize(n int64) Option {
	return func(w *Web) { w.imageLimit = n }
}

// New creates the content tools backed by the given store.
func New(store Uploader, opts ...Option) *Web {
	w := &Web{
		store: store,
		client: &http.Client{
			Timeout:   60 * time.Second,
			Transport: safeTransport(),
		},
		pageLimit:  maxPageSize,
		imageLimit: maxImageSize,
	}

	for _, o := range opts {
		o(w)
	}

	return w
}

// Tools returns a ToolBox containing read_web_page and read_web_image.
func (w *Web) Tools() (*toolbox.ToolBox, error) {
	page, err := toolbox.NewTyped("read_web_page", "Loads a web page by its URL and returns its text.", w.readPage)
	if err != nil {
		return nil, err
	}

	image, err := toolbox.NewTyped("read_web_image",
		"Loads a web image by its URL and stores it. Returns the stored image URI for use as a reference frame.",
		w.readImage)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	tb.Register(page, image)

	return tb, nil
}

type pageInput struct {
	URL string `json:"url" jsonschema:"the page URL"`
}

func (w *Web) readPage(ctx context.Context, in pageInput) (string, error) {
	body, _, err := w.get(ctx, in.URL, w.pageLimit)
	if err != nil {
		return "", fmt.Errorf("read_web_page: %w", err)
	}

	return string(body), nil
}

type imageInput struct {
	ImageURL string `json:"image_url" jsonschema:"the image URL"`
}

// ImageOutput is the read_web_image result.
type ImageOutput struct {
	Status      string `json:"status"`
	Details     string `json:"details"`
	OriginalURL string `json:"original_url"`
	URI         string `json:"uri"`
}

func (w *Web) readImage(ctx context.Context, in imageInput) (ImageOutput, error) {
	body, contentType, err := w.get(ctx, in.ImageURL, w.imageLimit)
	if err != nil {
		return ImageOutput{}, fmt.Errorf("read_web_image: %w", err)
	}

	mimeType := mediaType(contentType, body)
	owner := agentctx.AgentNameOr(ctx, "web")

	uri, err := w.store.Upload(ctx, owner, body, mimeType)
	if err != nil {
		return ImageOutput{}, fmt.Errorf("read_web_image: upload: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("component", "web").
		Str("url", in.ImageURL).
		Str("uri", uri).
		Str("mime_type", mimeType).
		Msg("web image stored")

	return ImageOutput{
		Status:      "success",
		Details:     "Image was retrieved and saved to storage.",
		OriginalURL: in.ImageURL,
		URI:         uri,
	}, nil
}

func (w *Web) get(ctx context.Context, rawURL string, limit int64) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := w.client.Do(req) //nolint:gosec // URL is model-supplied and checked by the transport
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on read

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, limit)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// mediaType returns the header's media type without parameters, sniffing the
// body when the header is missing or generic.
func mediaType(header string, body []byte) string {
	mt, _, _ := strings.Cut(header, ";")
	mt = strings.TrimSpace(mt)

	if mt == "" || mt == "application/octet-stream" || mt == "binary/octet-stream" {
		sniffed, _, _ := strings.Cut(mimetype.Detect(body).String(), ";")
		return sniffed
	}

	return mt
}

var privateRanges = func() []*net.IPNet {
	cidrs := []string{
		"0.0.0.0/8",
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}

	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, _ := net.ParseCIDR(cidr)
		nets = append(nets, ipNet)
	}

	return nets
}()

func isPrivateIP(ip net.IP) bool {
	return slices.ContainsFunc(privateRanges, func(r *net.IPNet) bool { return r.Contains(ip) })
}

// safeTransport checks resolved addresses at dial time, so redirects and
// DNS rebinding cannot reach private networks.
func safeTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("web: invalid address %s: %w", addr, err)
			}

			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("web: DNS lookup failed for %s: %w", host, err)
			}

			for _, ip := range ips {
				if isPrivateIP(ip.IP) {
					return nil, fmt.Errorf("web: connection to private address %s blocked", ip.IP)
				}
			}

			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
		},
	}
}
