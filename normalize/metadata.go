package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"golang.org/x/net/html"
)

// appStateMarkers identify embedded app-state blobs inside scripts that
// are not tagged with a recognizable id.
var appStateMarkers = []string{
	"window.__INITIAL_STATE__",
	"window.__PRELOADED_STATE__",
	"__APOLLO_STATE__",
}

// harvestBlobs collects the structured metadata blocks embedded in a page
// in the fixed priority order appended to the normalized text: JSON-LD
// first, then app-state blobs, then OpenGraph meta. Listing sites bury
// the authoritative price/address data in exactly these blocks, so a
// size-capped copy is worth far more to extraction than more prose.
func (n *Normalizer) harvestBlobs(doc *goquery.Document, markup string) []string {
	var blobs []string

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if blob := n.capBlob(s.Text()); blob != "" {
			blobs = append(blobs, blob)
		}
	})

	blobs = append(blobs, n.appStateBlobs(doc)...)

	if og := openGraphBlob(markup); og != "" {
		blobs = append(blobs, n.capBlob(og))
	}

	return blobs
}

// appStateBlobs finds framework state scripts: the well-known ids first,
// then scripts containing an assignment marker.
func (n *Normalizer) appStateBlobs(doc *goquery.Document) []string {
	var blobs []string
	seen := make(map[*html.Node]struct{})

	doc.Find(`script#__NEXT_DATA__`).Each(func(_ int, s *goquery.Selection) {
		if blob := n.capBlob(s.Text()); blob != "" {
			blobs = append(blobs, blob)
			seen[s.Get(0)] = struct{}{}
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, done := seen[s.Get(0)]; done {
			return
		}
		text := s.Text()
		for _, marker := range appStateMarkers {
			if strings.Contains(text, marker) {
				if blob := n.capBlob(text); blob != "" {
					blobs = append(blobs, blob)
				}
				return
			}
		}
	})

	return blobs
}

// openGraphBlob serializes the page's OpenGraph meta tags to JSON, or ""
// when the page declares none worth keeping.
func openGraphBlob(markup string) string {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(markup)); err != nil {
		return ""
	}
	if og.Title == "" && og.Description == "" && len(og.Images) == 0 {
		return ""
	}
	return og.String()
}
