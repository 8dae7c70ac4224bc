package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ReelRelay/internal/resolver"
)

const snaptikEndpoint = "https://snaptik.app/abc2.php"

var snaptikLinkExpr = regexp.MustCompile(`href="(https://[^"]+\.mp4[^"]*)"`)

// SnapTik scrapes the direct link out of SnapTik's HTML answer.
type SnapTik struct {
	client   *http.Client
	endpoint string
}

var _ resolver.Resolver = (*SnapTik)(nil)

// NewSnapTik wires an HTTP client; an empty endpoint uses the public site.
func NewSnapTik(client *http.Client, endpoint string) *SnapTik {
	if endpoint == "" {
		endpoint = snaptikEndpoint
	}
	return &SnapTik{client: defaultClient(client, 0), endpoint: endpoint}
}

// Name identifies the resolver inside the registry.
func (s *SnapTik) Name() string { return "snaptik" }

// Resolve returns the first https .mp4 link found in the response.
func (s *SnapTik) Resolve(ctx context.Context, sourceURL string) (string, error) {
	resp, err := postForm(ctx, s.client, s.endpoint, url.Values{"url": {sourceURL}})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if link := findAnchor(body); link != "" {
		return unescapeLink(link), nil
	}

	// The answer is sometimes an escaped HTML fragment inside a script.
	if match := snaptikLinkExpr.FindSubmatch(body); match != nil {
		return unescapeLink(string(match[1])), nil
	}
	return "", nil
}

func findAnchor(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "https://") && strings.Contains(href, ".mp4") {
			link = href
			return false
		}
		return true
	})
	return link
}

func unescapeLink(link string) string {
	return strings.ReplaceAll(link, `\u0026`, "&")
}
