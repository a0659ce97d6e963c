// Package goqueryparser parses fetched pages with goquery.
package goqueryparser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/corpus-crawler/internal/crawler"
)

// Parser implements crawler.Parser.
type Parser struct{}

var _ crawler.Parser = Parser{}

// New returns a Parser.
func New() Parser {
	return Parser{}
}

// Parse builds a document from raw HTML bytes.
func (Parser) Parse(body []byte) (crawler.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return document{doc: doc}, nil
}

type document struct {
	doc *goquery.Document
}

// SelectAnchors returns the href of every anchor whose href starts with
// prefix, in document order. This matches the selector a[href^="prefix"]
// without building a selector from untrusted input.
func (d document) SelectAnchors(prefix string) []string {
	var hrefs []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, prefix) {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
