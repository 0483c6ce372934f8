package engine

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ExtractTitle finds the first <title> element in raw markup using the
// streaming tokenizer (no full DOM build on the hot path).
func ExtractTitle(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}

var reNoscriptJS = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

var emptyRoots = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
}

// NeedsRendering applies shell heuristics to markup fetched without a
// browser: very little visible body text, an empty SPA root container,
// a noscript JS-required warning, or a script-heavy page with a thin body.
func NeedsRendering(markup string, minVisibleText int) bool {
	visible := visibleTextLen(markup)
	if visible < minVisibleText {
		return true
	}

	lower := strings.ToLower(markup)
	for _, root := range emptyRoots {
		if strings.Contains(lower, root) {
			return true
		}
	}
	if reNoscriptJS.MatchString(lower) {
		return true
	}
	if strings.Count(lower, "<script") > 10 && visible < 2*minVisibleText {
		return true
	}
	return false
}

// visibleTextLen measures the text inside <body>, skipping script, style
// and noscript content. Heuristic input only, never shown to callers.
func visibleTextLen(markup string) int {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	total := 0
	inBody := false
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return total
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "body":
				inBody = true
			case "script", "style", "noscript":
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				total += len(strings.TrimSpace(string(tokenizer.Text())))
			}
		}
	}
}
