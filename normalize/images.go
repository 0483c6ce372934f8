package normalize

import (
	nurl "net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/propintel/harvest/models"
)

// extractImages walks every <img> in document order and returns the
// descriptors that survive the dimension and SVG filters, deduplicated
// by resolved URL.
func (n *Normalizer) extractImages(doc *goquery.Document, base *nurl.URL) []models.ImageDescriptor {
	images := []models.ImageDescriptor{}
	seen := make(map[string]struct{})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		img, ok := n.imageFrom(s, base)
		if !ok {
			return
		}
		key := dedupKey(img)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		images = append(images, img)
	})

	return images
}

// extractFigures applies the same image rules within <figure> scope,
// paired with the sibling caption text.
func (n *Normalizer) extractFigures(doc *goquery.Document, base *nurl.URL) []models.FigureDescriptor {
	figures := []models.FigureDescriptor{}

	doc.Find("figure").Each(func(_ int, fig *goquery.Selection) {
		caption := collapseWhitespace(fig.Find("figcaption").First().Text())

		scoped := []models.ImageDescriptor{}
		seen := make(map[string]struct{})
		fig.Find("img").Each(func(_ int, s *goquery.Selection) {
			img, ok := n.imageFrom(s, base)
			if !ok {
				return
			}
			key := dedupKey(img)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			scoped = append(scoped, img)
		})

		if caption == "" && len(scoped) == 0 {
			return
		}
		figures = append(figures, models.FigureDescriptor{Caption: caption, Images: scoped})
	})

	return figures
}

// imageFrom builds one ImageDescriptor from an <img> element. Each
// attribute is an explicit optional with a documented fallback order:
// width/height attribute first, then inline CSS pixels. The element is
// discarded when a declared dimension is at or below the minimum, or
// when neither a resolvable URL nor a usable source set remains.
func (n *Normalizer) imageFrom(s *goquery.Selection, base *nurl.URL) (models.ImageDescriptor, bool) {
	width := dimension(s, "width")
	height := dimension(s, "height")
	if (width > 0 && width <= n.minImageDim) || (height > 0 && height <= n.minImageDim) {
		return models.ImageDescriptor{}, false
	}

	absURL := ""
	if src, ok := s.Attr("src"); ok && src != "" {
		if isSVGURL(src) {
			return models.ImageDescriptor{}, false
		}
		absURL = resolveURL(base, src)
	}

	var sourceSet []models.SourceSetEntry
	if srcset, ok := s.Attr("srcset"); ok {
		for _, entry := range parseSrcset(srcset) {
			if isSVGURL(entry.URL) {
				continue
			}
			if resolved := resolveURL(base, entry.URL); resolved != "" {
				sourceSet = append(sourceSet, models.SourceSetEntry{URL: resolved, Descriptor: entry.Descriptor})
			}
		}
	}

	if absURL == "" && len(sourceSet) == 0 {
		return models.ImageDescriptor{}, false
	}

	alt, _ := s.Attr("alt")
	title, _ := s.Attr("title")

	return models.ImageDescriptor{
		URL:       absURL,
		Alt:       collapseWhitespace(alt),
		Title:     collapseWhitespace(title),
		Width:     width,
		Height:    height,
		SourceSet: sourceSet,
	}, true
}

func dedupKey(img models.ImageDescriptor) string {
	if img.URL != "" {
		return img.URL
	}
	return "srcset:" + img.SourceSet[0].URL
}

// resolveURL resolves a reference against the page base, keeping only
// http/https results. Data URIs and other schemes yield no URL.
func resolveURL(base *nurl.URL, ref string) string {
	resolved, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// isSVGURL recognizes SVG references by extension, MIME hint, or data-URI
// prefix. SVGs are overwhelmingly icons, never content imagery.
func isSVGURL(raw string) bool {
	l := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(l, "data:") {
		return strings.HasPrefix(l, "data:image/svg")
	}
	if strings.Contains(l, "image/svg+xml") {
		return true
	}
	path := l
	if u, err := nurl.Parse(l); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.HasSuffix(path, ".svg") || strings.HasSuffix(path, ".svgz")
}

// srcsetEntry is one raw srcset candidate before resolution.
type srcsetEntry struct {
	URL        string
	Descriptor string
}

// parseSrcset splits a srcset attribute into url + size-descriptor pairs.
// Entries are comma-separated; within an entry the descriptor follows the
// URL after whitespace.
func parseSrcset(srcset string) []srcsetEntry {
	var entries []srcsetEntry
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		entry := srcsetEntry{URL: fields[0]}
		if len(fields) > 1 {
			entry.Descriptor = fields[1]
		}
		entries = append(entries, entry)
	}
	return entries
}

var (
	reStyleWidth  = regexp.MustCompile(`(?i)(?:^|;)\s*width\s*:\s*(\d+)px`)
	reStyleHeight = regexp.MustCompile(`(?i)(?:^|;)\s*height\s*:\s*(\d+)px`)
)

// dimension reads a pixel dimension from the explicit attribute, falling
// back to an inline CSS pixel value. Returns 0 when undeclared or not
// expressed in pixels.
func dimension(s *goquery.Selection, name string) int {
	if v, ok := s.Attr(name); ok {
		v = strings.TrimSuffix(strings.TrimSpace(v), "px")
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	style, ok := s.Attr("style")
	if !ok {
		return 0
	}
	re := reStyleWidth
	if name == "height" {
		re = reStyleHeight
	}
	if m := re.FindStringSubmatch(style); m != nil {
		if i, err := strconv.Atoi(m[1]); err == nil && i > 0 {
			return i
		}
	}
	return 0
}
