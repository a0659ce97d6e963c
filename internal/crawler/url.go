package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyLink is returned for anchors whose href is blank.
var ErrEmptyLink = errors.New("empty link")

// NormalizeLink turns an extracted href into the frontier key. The query
// component (and any fragment) is stripped; hrefs that do not start with an
// http or https scheme are treated as site-relative and prefixed with baseURL.
func NormalizeLink(baseURL, href string) (string, error) {
	link := strings.TrimSpace(href)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	if link == "" {
		return "", ErrEmptyLink
	}
	scheme, _, found := strings.Cut(link, ":")
	if found {
		switch strings.ToLower(scheme) {
		case "http", "https":
			return link, nil
		}
	}
	if strings.TrimSpace(baseURL) == "" {
		return "", fmt.Errorf("relative link %q without base url", link)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(link, "/"), nil
}

// BlobName derives the content-addressed filename for a fetched page. Root
// pages carry a marker so they never collide with a content page of the same hash.
func BlobName(siteID, contentHash string, root bool) string {
	if root {
		return fmt.Sprintf("%s_base_page_%s.blob", siteID, contentHash)
	}
	return fmt.Sprintf("%s_%s.blob", siteID, contentHash)
}
