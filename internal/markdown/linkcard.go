package markdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/goliatone/go-contentpack/internal/schema"
)

// LinkCard is the metadata shown for a standalone link.
type LinkCard struct {
	Title       string
	Description string
	Image       string
}

// LinkCardResolver looks up metadata for a link card URL.
type LinkCardResolver interface {
	ResolveLinkCard(ctx context.Context, href string) (LinkCard, error)
}

// StaticLinkCards resolves cards without network access, titling them with
// the link's host.
type StaticLinkCards struct{}

func (StaticLinkCards) ResolveLinkCard(_ context.Context, href string) (LinkCard, error) {
	u, err := url.Parse(href)
	if err != nil {
		return LinkCard{}, err
	}
	return LinkCard{Title: u.Hostname()}, nil
}

// HTTPLinkCardResolver reads OpenGraph metadata from the linked page.
type HTTPLinkCardResolver struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPLinkCardResolver returns a resolver with a bounded client timeout.
func NewHTTPLinkCardResolver(timeout time.Duration) *HTTPLinkCardResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLinkCardResolver{Client: &http.Client{Timeout: timeout}, MaxBytes: 1 << 20}
}

func (r *HTTPLinkCardResolver) ResolveLinkCard(ctx context.Context, href string) (LinkCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return LinkCard{}, err
	}
	req.Header.Set("Accept", "text/html")
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return LinkCard{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LinkCard{}, fmt.Errorf("markdown: link card %s: status %d", href, resp.StatusCode)
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	card := parseOpenGraph(io.LimitReader(resp.Body, limit))
	if card.Image != "" {
		if base, err := url.Parse(href); err == nil {
			if img, err := base.Parse(card.Image); err == nil {
				card.Image = img.String()
			}
		}
	}
	return card, nil
}

// parseOpenGraph scans the document head for og: properties, falling back
// to <title> and the description meta tag.
func parseOpenGraph(r io.Reader) LinkCard {
	var card LinkCard
	var fallbackTitle, fallbackDescription string
	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return finishCard(card, fallbackTitle, fallbackDescription)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "title":
				inTitle = true
			case "body":
				return finishCard(card, fallbackTitle, fallbackDescription)
			case "meta":
				key, content := metaAttrs(tok)
				switch key {
				case "og:title":
					card.Title = content
				case "og:description":
					card.Description = content
				case "og:image":
					card.Image = content
				case "description":
					fallbackDescription = content
				}
			}
		case html.TextToken:
			if inTitle && fallbackTitle == "" {
				fallbackTitle = strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			if tok := z.Token(); tok.Data == "title" {
				inTitle = false
			}
		}
	}
}

func metaAttrs(tok html.Token) (string, string) {
	var key, content string
	for _, attr := range tok.Attr {
		switch strings.ToLower(attr.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(attr.Val))
			}
		case "content":
			content = strings.TrimSpace(attr.Val)
		}
	}
	return key, content
}

func finishCard(card LinkCard, title, description string) LinkCard {
	if card.Title == "" {
		card.Title = title
	}
	if card.Description == "" {
		card.Description = description
	}
	return card
}

// ResolveLinkCards decorates every link card of doc. A failed lookup falls
// back to StaticLinkCards; the failures are returned joined so callers can
// report them without failing the document.
func ResolveLinkCards(ctx context.Context, doc *Document, resolver LinkCardResolver) error {
	if resolver == nil {
		resolver = StaticLinkCards{}
	}
	cache := map[string]LinkCard{}
	var errs []error
	for _, n := range doc.KeepNodes(schema.KeepLinkCard) {
		href, _ := n.Keep.Props[schema.PropHref].(string)
		card, ok := cache[href]
		if !ok {
			var err error
			card, err = resolver.ResolveLinkCard(ctx, href)
			if err != nil {
				errs = append(errs, fmt.Errorf("link card %s: %w", href, err))
				card, _ = StaticLinkCards{}.ResolveLinkCard(ctx, href)
			}
			cache[href] = card
		}
		setOptional(n.Keep.Props, schema.PropTitle, card.Title)
		setOptional(n.Keep.Props, schema.PropDescription, card.Description)
		setOptional(n.Keep.Props, schema.PropImageURL, card.Image)
	}
	return errors.Join(errs...)
}

func setOptional(props map[string]any, key, value string) {
	if value == "" {
		delete(props, key)
		return
	}
	props[key] = value
}
