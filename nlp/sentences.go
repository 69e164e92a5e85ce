package nlp

import (
	"regexp"
	"strings"
)

var (
	trailingPeriodRe = regexp.MustCompile(`\.\s*$`)

	itemDashRe   = regexp.MustCompile(`^\s*-\s+`)
	itemNumberRe = regexp.MustCompile(`^\s*\d+\.\s+`)
	itemParenRe  = regexp.MustCompile(`^\s*(-\s*)?\d+\)\s+`)
)

// JoinSentences reassembles line-broken, bulleted text into a single
// line of period-separated sentences, the shape the NLP engines expect
// as input.
//
// A new sentence starts at an empty line, a dash bullet, a numeric "1."
// marker, or a "1)" marker with an optional leading dash; any other
// line is glued to the current sentence with a space. Each completed
// sentence has its trailing period stripped before the final ". " join,
// and the whole result carries exactly one trailing period. Empty input
// stays empty.
func JoinSentences(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var processed []string
	curr := ""
	flush := func() {
		if curr != "" {
			processed = append(processed, trailingPeriodRe.ReplaceAllString(curr, ""))
		}
	}

	for _, line := range lines {
		switch {
		case len(line) == 0:
			flush()
			curr = ""
		case curr == "":
			curr = strings.TrimSpace(line)
		case itemDashRe.MatchString(line), itemNumberRe.MatchString(line), itemParenRe.MatchString(line):
			flush()
			curr = line
		default:
			curr = curr + " " + strings.TrimSpace(line)
		}
	}
	flush()

	sentences := strings.Join(processed, ". ")
	if len(sentences) > 0 {
		sentences += "."
	}
	return sentences
}
