package mailbox

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// cidRefPattern matches a cid: reference optionally wrapped in quotes.
// The token ends at a quote, whitespace, or ">"; surrounding quotes are
// captured so they can be preserved in the replacement.
var cidRefPattern = regexp.MustCompile(`(["']?)cid:([^"'\s>]+)(["']?)`)

// embedInlineImages rewrites cid: references in an HTML body into base64
// data URIs using the inline resources collected during the structure
// walk. References with no matching resource are left untouched, so
// running the result through the function again is a no-op.
func embedInlineImages(html string, resources []filePart) string {
	if len(resources) == 0 || !strings.Contains(html, "cid:") {
		return html
	}

	byID := make(map[string]*filePart, len(resources))
	for i := range resources {
		if resources[i].ContentID != "" {
			byID[resources[i].ContentID] = &resources[i]
		}
	}

	return cidRefPattern.ReplaceAllStringFunc(html, func(match string) string {
		m := cidRefPattern.FindStringSubmatch(match)
		res, ok := byID[m[2]]
		if !ok {
			return match
		}
		data := base64.StdEncoding.EncodeToString(res.Content)
		return m[1] + "data:" + inlineMediaType(res) + ";base64," + data + m[3]
	})
}

// inlineMediaType returns the full media type of an inline resource. A
// stored type without a "/" separator is assumed to be a bare image
// subtype and prefixed with "image/". An approximation, not a
// guaranteed-correct resolution.
func inlineMediaType(res *filePart) string {
	if strings.Contains(res.MIMEType, "/") {
		return res.MIMEType
	}
	if res.MIMEType != "" {
		return "image/" + res.MIMEType
	}
	return "image/" + res.Subtype
}
