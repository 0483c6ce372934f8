package normalize

import (
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
)

// newMarkdownConverter creates a reusable, goroutine-safe Converter:
//
//   - base plugin strips script, style, iframe, noscript, head, meta,
//     link, input, textarea, and HTML comments.
//   - commonmark renders standard Markdown.
//   - table keeps tabular data readable with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// RenderMarkdown converts raw markup to Markdown, running readability
// first so navigation chrome never reaches the output. Relative links and
// image sources are resolved against baseURL.
func (n *Normalizer) RenderMarkdown(markup, baseURL string) (string, error) {
	content := markup
	if base, err := nurl.Parse(baseURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(markup), base); err == nil {
			if strings.TrimSpace(article.TextContent) != "" {
				content = article.Content
			}
		}
	}
	return n.mdConverter.ConvertString(content, converter.WithDomain(baseURL))
}
