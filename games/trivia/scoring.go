package trivia

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds an answer to the form used for comparison: lower case,
// diacritics removed, only letters, digits, underscores and whitespace kept.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

	folded, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, folded))
}

// CheckAnswer reports whether raw matches any canonical answer or alias of q.
func CheckAnswer(raw string, q Question) bool {
	ans := Normalize(raw)

	for _, a := range q.Answers {
		if ans == Normalize(a) {
			return true
		}
	}

	for _, a := range q.Aliases {
		if ans == Normalize(a) {
			return true
		}
	}

	return false
}

// ComputePoints scales maxPoints by the fraction of time left, rounded to the
// nearest integer and clamped to [0, maxPoints].
func ComputePoints(timeRemaining, questionTime, maxPoints int) int {
	if questionTime <= 0 || maxPoints <= 0 {
		return 0
	}

	points := int(math.Round(float64(maxPoints) * float64(timeRemaining) / float64(questionTime)))

	return min(max(points, 0), maxPoints)
}
