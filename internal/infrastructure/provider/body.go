package provider

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// ExtractText reduces an HTML email body to plain text: script/style
// blocks removed, tags stripped, entities decoded, whitespace collapsed.
// Plain-text input passes through with only whitespace normalization.
func ExtractText(body string) string {
	text := scriptRe.ReplaceAllString(body, " ")
	text = styleRe.ReplaceAllString(text, " ")

	// Keep paragraph breaks readable before stripping tags
	text = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</div>", "\n").Replace(text)

	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = spaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
