package tagger

import (
	"regexp"
	"strings"
)

var (
	phraseBreakRe = regexp.MustCompile(`[.,;:!?()\[\]{}<>/\\|"]+`)
	tokenRe       = regexp.MustCompile(`[a-z0-9][a-z0-9'-]*`)
)

// Chunk extracts lowercased noun-phrase-ish tags from free text: runs
// of consecutive content tokens, broken at punctuation, stopwords,
// bare numbers, and single letters.
func Chunk(text string) []string {
	var tags []string

	for _, segment := range phraseBreakRe.Split(strings.ToLower(text), -1) {
		var run []string
		flush := func() {
			if len(run) > 0 {
				tags = append(tags, strings.Join(run, " "))
				run = run[:0]
			}
		}

		for _, tok := range tokenRe.FindAllString(segment, -1) {
			if len(tok) < 2 || isNumber(tok) || stopwords[tok] {
				flush()
				continue
			}
			run = append(run, tok)
		}
		flush()
	}

	return tags
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stopwords break tag runs; they never appear inside a tag.
var stopwords = func() map[string]bool {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "am",
		"an", "and", "any", "are", "as", "at", "be", "because", "been",
		"before", "being", "below", "between", "both", "but", "by", "can",
		"cannot", "could", "did", "do", "does", "doing", "down", "during",
		"each", "few", "for", "from", "further", "had", "has", "have",
		"having", "he", "her", "here", "hers", "herself", "him", "himself",
		"his", "how", "if", "in", "into", "is", "it", "its", "itself",
		"may", "me", "might", "more", "most", "must", "my", "myself",
		"no", "nor", "not", "of", "off", "on", "once", "only", "or",
		"other", "ought", "our", "ours", "ourselves", "out", "over", "own",
		"per", "prior", "same", "shall", "she", "should", "so", "some",
		"such", "than", "that", "the", "their", "theirs", "them",
		"themselves", "then", "there", "these", "they", "this", "those",
		"through", "to", "too", "under", "until", "up", "upon", "very",
		"via", "was", "we", "were", "what", "when", "where", "which",
		"while", "who", "whom", "why", "will", "with", "within", "without",
		"would", "you", "your", "yours", "yourself", "yourselves",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
