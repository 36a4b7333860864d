package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// defaultExclusions lists path substrings that mark non-page resources.
var defaultExclusions = []string{".pdf", ".xml", ".jpg", ".png"}

// defaultDenyPaths lists platform infrastructure paths that are never
// useful graph nodes.
var defaultDenyPaths = []string{"cdn-cgi"}

// canonicalize strips the fragment and normalizes an empty path to "/".
// Query strings and trailing slashes are preserved, so /a and /a/ remain
// distinct nodes.
func canonicalize(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return &c
}

// parseSeed validates and canonicalizes a crawl seed.
func parseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errUnsupportedScheme}
	}
	if u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	return canonicalize(u), nil
}

// extractLinks parses an HTML body and returns the canonicalized absolute
// targets of every anchor, resolved against the page URL. Only http(s)
// targets are returned; unparseable hrefs are dropped.
func extractLinks(body []byte, page *url.URL) ([]*url.URL, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []*url.URL
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				resolved := page.ResolveReference(ref)
				if resolved.Scheme != "http" && resolved.Scheme != "https" {
					continue
				}
				links = append(links, canonicalize(resolved))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// pathMatchesAny reports whether any needle occurs in the URL path.
func pathMatchesAny(path string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(path, n) {
			return true
		}
	}
	return false
}
