// Package normalize turns raw page markup into a structured document:
// title, cleaned body text, and filtered image/figure metadata. Everything
// here is a pure function of its inputs.
package normalize

import (
	"fmt"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/models"
)

// chromeSelector matches the non-content elements stripped before text
// extraction. The page title is captured before this pass runs: <title>
// lives inside <head>, which the strip removes.
const chromeSelector = "script, style, noscript, iframe, svg, nav, header, footer, aside, form, template, head"

// minContentLength is the minimum readability TextContent length for the
// extraction to be considered valid; below it we assume the algorithm
// missed the main content and fall back to the stripped document text.
const minContentLength = 50

// Normalizer holds the pre-parsed configuration shared by all calls.
// Read-only after construction; safe for concurrent use.
type Normalizer struct {
	minImageDim    int
	blobCap        int
	stripSelectors []string
	mdConverter    *converter.Converter
}

// New creates a Normalizer from the detection configuration. Extra strip
// selectors are validated with cascadia up front; invalid ones are skipped.
func New(det config.DetectionConfig) *Normalizer {
	n := &Normalizer{
		minImageDim: det.MinImageDim,
		blobCap:     det.MetadataBlobCap,
		mdConverter: newMarkdownConverter(),
	}
	for _, raw := range det.StripSelectors {
		if _, err := cascadia.Parse(raw); err == nil {
			n.stripSelectors = append(n.stripSelectors, raw)
		}
	}
	return n
}

// Normalize parses raw markup into a NormalizedDocument.
//
// Ordering matters: the title and the structured-metadata blocks are
// captured from the intact document, and images/figures are extracted,
// before the chrome strip removes the regions they live in.
func (n *Normalizer) Normalize(markup, baseURL string) (*models.NormalizedDocument, error) {
	base, err := nurl.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("normalize: invalid base URL %q: %w", baseURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("normalize: parse markup: %w", err)
	}

	title := collapseWhitespace(doc.Find("title").First().Text())
	blobs := n.harvestBlobs(doc, markup)
	images := n.extractImages(doc, base)
	figures := n.extractFigures(doc, base)

	text := collapseWhitespace(n.bodyText(markup, base, doc))
	for _, blob := range blobs {
		if text == "" {
			text = blob
			continue
		}
		text += " " + blob
	}

	return &models.NormalizedDocument{
		Title:     title,
		Text:      text,
		CharCount: utf8.RuneCountInString(text),
		WordCount: len(strings.Fields(text)),
		Images:    images,
		Figures:   figures,
	}, nil
}

// bodyText extracts the main body text: readability first, stripped
// document text when readability fails or finds too little.
func (n *Normalizer) bodyText(markup string, base *nurl.URL, doc *goquery.Document) string {
	article, err := readability.FromReader(strings.NewReader(markup), base)
	if err == nil {
		if t := strings.TrimSpace(article.TextContent); len(t) >= minContentLength {
			return t
		}
	}

	doc.Find(chromeSelector).Remove()
	for _, sel := range n.stripSelectors {
		doc.Find(sel).Remove()
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body.Text()
	}
	return doc.Text()
}

// collapseWhitespace folds all whitespace runs into single spaces and
// trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capBlob collapses a metadata blob's whitespace and truncates it to the
// configured byte cap on a valid UTF-8 boundary.
func (n *Normalizer) capBlob(s string) string {
	s = collapseWhitespace(s)
	if n.blobCap > 0 && len(s) > n.blobCap {
		s = strings.ToValidUTF8(s[:n.blobCap], "")
	}
	return s
}
