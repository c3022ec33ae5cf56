package sitemap

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

func parseEntry(node *xmlquery.Node) (crawler.SitemapEntry, error) {
	locNode := findLoc(node)
	if locNode == nil {
		return crawler.SitemapEntry{}, fmt.Errorf("%w: <%s> has no loc", crawler.ErrParse, tagName(node))
	}
	loc := strings.TrimSpace(locNode.InnerText())
	id, err := DeriveID(loc)
	if err != nil {
		return crawler.SitemapEntry{}, err
	}

	entry := crawler.SitemapEntry{ID: id, Loc: loc}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode || child == locNode {
			continue
		}
		if entry.Extra == nil {
			entry.Extra = make(map[string]string)
		}
		entry.Extra[tagName(child)] = strings.TrimSpace(child.InnerText())
	}
	return entry, nil
}

// DeriveID returns the numeric id carried by the last non-empty path segment
// of loc, e.g. https://careers.example.com/job/engineer/12345/ -> 12345.
func DeriveID(loc string) (int64, error) {
	segment := lastSegment(loc)
	if !isDigits(segment) {
		return 0, &crawler.MalformedIDError{Loc: loc, Segment: segment}
	}
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return 0, &crawler.MalformedIDError{Loc: loc, Segment: segment}
	}
	return id, nil
}

func lastSegment(loc string) string {
	path := loc
	if u, err := url.Parse(loc); err == nil {
		path = u.Path
	}
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// findLoc returns the first loc element below node in document order.
func findLoc(node *xmlquery.Node) *xmlquery.Node {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if child.Data == "loc" && child.Prefix == "" {
			return child
		}
		if found := findLoc(child); found != nil {
			return found
		}
	}
	return nil
}

// rootElement returns the single top-level element of doc.
func rootElement(doc *xmlquery.Node) (*xmlquery.Node, error) {
	var root *xmlquery.Node
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode {
			continue
		}
		if root != nil {
			return nil, fmt.Errorf("%w: unexpected element <%s> after root <%s>", crawler.ErrParse, tagName(n), tagName(root))
		}
		root = n
	}
	if root == nil {
		return nil, fmt.Errorf("%w: sitemap has no root element", crawler.ErrParse)
	}
	return root, nil
}

func tagName(node *xmlquery.Node) string {
	if node.Prefix != "" {
		return node.Prefix + ":" + node.Data
	}
	return node.Data
}

func stripDefaultNamespace(body []byte) []byte {
	loc := defaultNamespace.FindIndex(body)
	if loc == nil {
		return body
	}
	out := make([]byte, 0, len(body)-(loc[1]-loc[0]))
	out = append(out, body[:loc[0]]...)
	return append(out, body[loc[1]:]...)
}

func isMalformed(err error) bool {
	return errors.Is(err, crawler.ErrMalformedID)
}
