package extract

import (
	"regexp"
	"strings"
)

var (
	hyphenBreakRe   = regexp.MustCompile(`(\w)-[ \t]*\r?\n\s*(\w)`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	urlSchemeGapRe  = regexp.MustCompile(`(https?://)\s+`)
	spaceBeforePunc = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Clean normalizes extracted text: words hyphenated across a line break are
// joined, whitespace runs become a single space, stray spaces after a URL
// scheme and before punctuation are removed.
func Clean(text string) string {
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = urlSchemeGapRe.ReplaceAllString(text, "$1")
	text = spaceBeforePunc.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// CleanLines applies Clean to each line. Line breaks are kept and runs of
// blank lines become one, so row-oriented text keeps its layout.
func CleanLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = Clean(line)
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
