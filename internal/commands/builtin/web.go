// File: internal/commands/builtin/web.go
package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	defaultMaxBytes  = 2 << 20
	maxLinks         = 5
)

// ErrLocalAccess is returned for URLs that point at the local machine.
var ErrLocalAccess = errors.New("access to local files is restricted")

// WebFetcher retrieves a page and reduces it to visible text plus links.
type WebFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64

	// allowLocal lets tests point the fetcher at an httptest server.
	allowLocal bool
}

// NewWebFetcher builds a fetcher with a decompressing transport.
func NewWebFetcher(userAgent string, maxBytes int64) *WebFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &WebFetcher{
		client: &http.Client{
			Transport: newDecompressingTransport(nil),
			Timeout:   60 * time.Second,
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Page is the reduced form of a fetched document.
type Page struct {
	Title string
	Text  string
	Links []string
}

// BrowseWebsite returns the browse_website descriptor bound to fetcher.
func BrowseWebsite(fetcher *WebFetcher) commands.Descriptor {
	return commands.Descriptor{
		Name:        "browse_website",
		Description: "Browse Website",
		Params: []commands.Param{
			{Name: "url", Type: commands.ParamString, Required: true},
			{Name: "question", Type: commands.ParamString},
		},
		Handler: func(ctx context.Context, env commands.Env, args commands.Args) (string, error) {
			page, err := fetcher.Fetch(ctx, args.String("url"))
			if err != nil {
				return "", err
			}
			env.Logger.Debug("Fetched page.",
				zap.String("url", args.String("url")),
				zap.Int("text_len", len(page.Text)),
				zap.Int("links", len(page.Links)))

			var b strings.Builder
			if q := args.String("question"); q != "" {
				fmt.Fprintf(&b, "Question: %s\n", q)
			}
			if page.Title != "" {
				fmt.Fprintf(&b, "Title: %s\n", page.Title)
			}
			fmt.Fprintf(&b, "Website Content: %s\n", page.Text)
			if len(page.Links) > 0 {
				fmt.Fprintf(&b, "Links: %s", strings.Join(page.Links, ", "))
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

// checkURL rejects anything that is not plain http(s) or, unless allowLocal,
// that targets localhost.
func checkURL(raw string, allowLocal bool) (*url.URL, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(lower, "file:") {
		return nil, ErrLocalAccess
	}
	if !allowLocal {
		for _, prefix := range []string{"http://localhost", "https://localhost", "http://127.", "https://127."} {
			if strings.HasPrefix(lower, prefix) {
				return nil, ErrLocalAccess
			}
		}
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL: only http and https are supported")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	return u, nil
}

// Fetch downloads url and extracts its readable text.
func (f *WebFetcher) Fetch(ctx context.Context, raw string) (Page, error) {
	u, err := checkURL(raw, f.allowLocal)
	if err != nil {
		return Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("failed to fetch %s: HTTP %d", u, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, f.maxBytes)
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") && resp.Header.Get("Content-Type") != "" {
		data, err := io.ReadAll(limited)
		if err != nil {
			return Page{}, fmt.Errorf("failed to read %s: %w", u, err)
		}
		return Page{Text: collapseSpace(string(data))}, nil
	}

	doc, err := html.Parse(limited)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse %s: %w", u, err)
	}
	return extractPage(doc, resp.Request.URL), nil
}

// extractPage walks the parsed tree collecting visible text, the title and up to
// maxLinks absolute hyperlinks.
func extractPage(doc *html.Node, base *url.URL) Page {
	var page Page
	var text []string
	seen := make(map[string]struct{})

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "svg":
				return
			case "title":
				if n.FirstChild != nil && page.Title == "" {
					page.Title = collapseSpace(n.FirstChild.Data)
				}
				return
			case "a":
				if href := attr(n, "href"); href != "" && len(page.Links) < maxLinks {
					if link := absolute(base, href); link != "" {
						if _, dup := seen[link]; !dup {
							seen[link] = struct{}{}
							label := collapseSpace(nodeText(n))
							if label == "" {
								label = link
							}
							page.Links = append(page.Links, fmt.Sprintf("%s (%s)", label, link))
						}
					}
				}
			}
		}
		if n.Type == html.TextNode {
			if t := collapseSpace(n.Data); t != "" {
				text = append(text, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Text = strings.Join(text, " ")
	return page
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func absolute(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
