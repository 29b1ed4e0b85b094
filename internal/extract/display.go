package extract

import (
	"regexp"
	"strings"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n+`)
	listItem       = regexp.MustCompile(`^(-|\*|\d+\.)\s+`)
)

// NormalizeTextForDisplay reflows an email body for a terminal pane. Blank
// lines separate paragraphs. Paragraphs containing a list item ("- ", "* ",
// "1. ") keep their line breaks; all others are joined into one line with
// runs of whitespace collapsed.
func NormalizeTextForDisplay(text string) string {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\r", ""))
	if t == "" {
		return ""
	}

	blocks := paragraphBreak.Split(t, -1)
	out := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		lines := strings.Split(blk, "\n")
		listish := false
		for i, l := range lines {
			lines[i] = strings.TrimRight(l, " \t")
			if listItem.MatchString(strings.TrimSpace(l)) {
				listish = true
			}
		}
		if listish {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
			continue
		}
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		if para := strings.TrimSpace(whitespace.ReplaceAllString(strings.Join(lines, " "), " ")); para != "" {
			out = append(out, para)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n\n"))
}
