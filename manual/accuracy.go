package manual

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// normalizeWords folds case and width, drops punctuation and splits on
// whitespace.
func normalizeWords(s string) []string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Fields(s)
}

// Accuracy scores how closely transcript reproduces reference as
// 1 - WER, clamped to [0, 1]. Two empty texts match perfectly.
func Accuracy(reference, transcript string) float64 {
	ref := normalizeWords(reference)
	hyp := normalizeWords(transcript)
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 1
		}
		return 0
	}
	score := 1 - float64(wordDistance(ref, hyp))/float64(len(ref))
	if score < 0 {
		return 0
	}
	return score
}

// wordDistance is the Levenshtein distance between two word sequences.
func wordDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
