package markdown

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrResourceNotFound = errors.New("markdown: referenced resource not found")
	ErrDataURLInvalid   = errors.New("markdown: invalid data url")
)

// maxRemoteBytes caps resources downloaded over HTTP.
const maxRemoteBytes = 32 << 20

// Resource is the loaded content of a file or URL referenced by a document.
type Resource struct {
	Ref         string
	Body        []byte
	ContentType string
	Ext         string
	Remote      bool
}

// Fetcher loads resources referenced by a document.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (Resource, error)
}

// FileFetcher resolves relative references against Dir, absolute http(s)
// URLs through Client and decodes data: URLs in place.
type FileFetcher struct {
	Dir    string
	Client *http.Client
}

// NewFileFetcher returns a fetcher rooted at dir.
func NewFileFetcher(dir string, client *http.Client) FileFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return FileFetcher{Dir: dir, Client: client}
}

func (f FileFetcher) Fetch(ctx context.Context, ref string) (Resource, error) {
	if IsDataURL(ref) {
		return DecodeDataURL(ref)
	}
	if IsRemote(ref) {
		return f.fetchRemote(ctx, ref)
	}
	if err := ctx.Err(); err != nil {
		return Resource{}, err
	}
	clean := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(ref)), "/")
	body, err := os.ReadFile(filepath.Join(f.Dir, filepath.FromSlash(pathOnly(ref))))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resource{}, fmt.Errorf("%w: %s", ErrResourceNotFound, ref)
		}
		return Resource{}, err
	}
	ext := strings.ToLower(path.Ext(pathOnly(clean)))
	return Resource{Ref: ref, Body: body, ContentType: DetectContentType(ext, body), Ext: ext}, nil
}

func (f FileFetcher) fetchRemote(ctx context.Context, ref string) (Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Resource{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Resource{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Resource{}, fmt.Errorf("%w: %s", ErrResourceNotFound, ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Resource{}, fmt.Errorf("markdown: fetch %s: status %d", ref, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
	if err != nil {
		return Resource{}, err
	}
	ext := strings.ToLower(path.Ext(pathOnly(resp.Request.URL.Path)))
	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = DetectContentType(ext, body)
	}
	return Resource{Ref: ref, Body: body, ContentType: contentType, Ext: ext, Remote: true}, nil
}

// IsRemote reports whether ref is an absolute http(s) URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsDataURL reports whether ref carries its content as a data: URL.
func IsDataURL(ref string) bool {
	return len(ref) >= 5 && strings.EqualFold(ref[:5], "data:")
}

// DecodeDataURL decodes data:[<mediatype>][;base64],<payload>. The payload
// is percent-decoded first; base64 payloads may omit padding.
func DecodeDataURL(ref string) (Resource, error) {
	if !IsDataURL(ref) {
		return Resource{}, fmt.Errorf("%w: not a data url", ErrDataURLInvalid)
	}
	header, payload, ok := strings.Cut(ref[5:], ",")
	if !ok {
		return Resource{}, fmt.Errorf("%w: missing payload separator", ErrDataURLInvalid)
	}
	encoded := false
	if trimmed, found := strings.CutSuffix(strings.TrimSpace(header), ";base64"); found {
		header, encoded = trimmed, true
	}
	contentType := "text/plain"
	if strings.TrimSpace(header) != "" {
		mediaType, _, err := mime.ParseMediaType(header)
		if err != nil {
			return Resource{}, fmt.Errorf("%w: media type %q: %w", ErrDataURLInvalid, header, err)
		}
		contentType = mediaType
	}

	raw, err := url.PathUnescape(payload)
	if err != nil {
		return Resource{}, fmt.Errorf("%w: %w", ErrDataURLInvalid, err)
	}
	body := []byte(raw)
	if encoded {
		compact := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, raw)
		body, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
		if err != nil {
			return Resource{}, fmt.Errorf("%w: %w", ErrDataURLInvalid, err)
		}
	}
	return Resource{Ref: ref, Body: body, ContentType: contentType, Ext: extensionFor(contentType)}, nil
}

// extensionFor picks the file extension used for content-addressed keys of
// decoded data.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "text/plain":
		return ".txt"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// DetectContentType prefers the extension and falls back to sniffing.
func DetectContentType(ext string, body []byte) string {
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
				return mediaType
			}
			return ct
		}
	}
	ct := http.DetectContentType(body)
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}

func pathOnly(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}
