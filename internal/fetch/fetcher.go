// Package fetch provides the outbound page-fetch capability: bounded
// HTTP GETs with per-request timeouts, plus link and title discovery.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// maxBodyBytes caps how much of a page is read.
	maxBodyBytes = 2 << 20 // 2MB

	userAgent = "fieldwork/0.1 (+background research agent)"
)

var (
	hrefRe    = regexp.MustCompile(`(?i)<a[^>]+href\s*=\s*["']([^"'#]+)["']`)
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe  = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe     = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// Page is the fetched, text-extracted form of one URL.
type Page struct {
	URL     string
	Title   string
	Content string // tag-stripped text
	HTML    string // raw body, for link discovery
}

// Fetcher performs HTTP page fetches with a per-request timeout.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a fetcher. timeout bounds each individual fetch so
// one slow host cannot stall a whole crawl.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch retrieves one page and extracts its text content.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", pageURL, err)
	}

	html := string(body)
	return &Page{
		URL:     pageURL,
		Title:   extractTitle(html),
		Content: extractText(html),
		HTML:    html,
	}, nil
}

// extractTitle pulls the <title> text, if any.
func extractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(tagRe.ReplaceAllString(m[1], ""))
}

// extractText strips markup down to readable text.
func extractText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, "\n")
	text = spaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	return newlineRe.ReplaceAllString(text, "\n\n")
}

// ExtractLinks discovers same-host sub-page URLs in an HTML body,
// resolved against the seed, deduplicated, capped at limit. The seed
// itself is excluded.
func ExtractLinks(seedURL, html string, limit int) []string {
	base, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}

	seen := map[string]bool{normalize(base): true}
	var links []string

	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		raw := strings.TrimSpace(m[1])
		if raw == "" || strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "javascript:") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if resolved.Host != base.Host {
			continue
		}
		key := normalize(resolved)
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, resolved.String())
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return strings.TrimSuffix(c.String(), "/")
}
