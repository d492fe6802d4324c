package instance

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// htmlStripPolicy strips all markup, leaving plain text - the engine never
// needs to keep any tag when deriving PR_BODY from PR_HTML (spec §4.4).
var htmlStripPolicy = bluemonday.StrictPolicy()

// stripHTMLTags renders html down to plain text for the HTML->plain body
// derivation flush_instance performs when PR_HTML is present and PR_BODY
// is absent (spec §4.4).
func stripHTMLTags(html string) string {
	text := htmlStripPolicy.Sanitize(html)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
