// Package htmlbody turns a generated HTML page into a fragment that can be
// embedded in another page's <div>.
package htmlbody

import (
	"regexp"
	"strings"

	"docgen/internal/logging"
)

// Extractor returns the contents of <body>, preceded by the <style> elements
// and IE conditional comments found elsewhere in the page. The page is not
// parsed; it need not be well-formed.
type Extractor struct {
	ignore []*regexp.Regexp
	names  []string
}

// IgnoreScript drops every <script src="..."> whose URL contains substr,
// e.g. "jquery" when the embedding page already loads it.
func (e *Extractor) IgnoreScript(substr string) *Extractor {
	e.ignore = append(e.ignore, regexp.MustCompile(`<script src=['"][^'"]*`+regexp.QuoteMeta(substr)+`[^'"]*['"]></script>`))
	e.names = append(e.names, substr)
	return e
}

type span struct{ from, to int }

func (s span) overlaps(o span) bool { return o.to > s.from && o.from < s.to }

// element finds an element kind. With inner set only the content between the
// end of the start tag and the end tag is kept.
type element struct {
	start, startEnd, end string
	inner                bool
}

// Later kinds are prepended, so styles come first in the result.
var elements = []element{
	{start: "<body", startEnd: ">", end: "</body>", inner: true},
	{start: "<!--[if IE]>", end: "<![endif]-->"},
	{start: "<!--[if !IE]>", end: "<!--<![endif]-->"},
	{start: "<style", end: "</style>"},
}

func (e *Extractor) Extract(html string) string {
	defer logging.Timer("html body extraction")()
	var (
		parts []string
		taken []span
	)
	for _, el := range elements {
		var b strings.Builder
		for at := 0; ; {
			i := strings.Index(html[at:], el.start)
			if i < 0 {
				break
			}
			i += at
			at = i + 1
			s, ok := el.span(html, i)
			if !ok || overlapsAny(taken, s) {
				continue
			}
			b.WriteString(e.stripScripts(html[s.from:s.to]))
			taken = append(taken, s)
		}
		b.WriteByte('\n')
		parts = append([]string{b.String()}, parts...)
	}
	return strings.Join(parts, "")
}

// span locates the element starting at i. An element without its end tag is
// skipped.
func (el element) span(html string, i int) (span, bool) {
	end := strings.Index(html[i:], el.end)
	if end < 0 {
		return span{}, false
	}
	end += i
	if !el.inner {
		return span{i, end + len(el.end)}, true
	}
	open := strings.Index(html[i:end], el.startEnd)
	if open < 0 {
		return span{}, false
	}
	return span{i + open + len(el.startEnd), end}, true
}

func overlapsAny(taken []span, s span) bool {
	for _, t := range taken {
		if t.overlaps(s) {
			return true
		}
	}
	return false
}

func (e *Extractor) stripScripts(html string) string {
	for i, re := range e.ignore {
		html = re.ReplaceAllLiteralString(html, "<!-- ignoring "+e.names[i]+" -->")
	}
	return html
}
