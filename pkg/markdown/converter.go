package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	listItemRe = regexp.MustCompile(`<li>\s*`)
	listEndRe  = regexp.MustCompile(`</li>\s*`)
	blockEndRe = regexp.MustCompile(`</(?:p|pre|h[1-6]|blockquote)>`)
	tagRe      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// ToTerminalText renders markdown in an answer to plain text suitable
// for a terminal transcript. Plain text passes through unchanged.
func ToTerminalText(input string) string {
	if input == "" {
		return ""
	}

	rendered := string(blackfriday.Run([]byte(input), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	// Keep list bullets and block boundaries, drop everything else.
	rendered = listItemRe.ReplaceAllString(rendered, "• ")
	rendered = listEndRe.ReplaceAllString(rendered, "\n")
	rendered = blockEndRe.ReplaceAllString(rendered, "\n")
	rendered = strings.ReplaceAll(rendered, "<br>", "\n")
	rendered = strings.ReplaceAll(rendered, "<br/>", "\n")
	rendered = tagRe.ReplaceAllString(rendered, "")

	rendered = html.UnescapeString(rendered)
	rendered = blankRunRe.ReplaceAllString(rendered, "\n\n")

	return strings.TrimSpace(rendered)
}
