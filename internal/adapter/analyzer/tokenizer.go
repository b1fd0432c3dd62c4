package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase terms for lexical scoring and
// diversity reranking. Form identifiers such as "1040-SR" or "W-2" stay whole.
type Tokenizer struct {
	stopwords   map[string]struct{}
	foldPlurals bool
}

// NewTokenizer creates a new Tokenizer. foldPlurals maps simple English
// plurals onto their singular so "deductions" matches "deduction".
func NewTokenizer(foldPlurals bool) *Tokenizer {
	return &Tokenizer{
		stopwords:   defaultStopwords(),
		foldPlurals: foldPlurals,
	}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 && !isDigits(word) {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.foldPlurals {
			word = singular(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// splitWords splits text on anything that is not a letter or digit. A hyphen
// between two alphanumerics is kept when the joined word carries a digit.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		w := current.String()
		current.Reset()
		if strings.Contains(w, "-") && !strings.ContainsFunc(w, unicode.IsDigit) {
			for _, part := range strings.Split(w, "-") {
				if part != "" {
					words = append(words, part)
				}
			}
			return
		}
		words = append(words, w)
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '-' && current.Len() > 0 && i+1 < len(runes) && isAlnum(runes[i+1]):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return words
}

func singular(word string) string {
	if len(word) <= 4 || strings.ContainsFunc(word, unicode.IsDigit) {
		return word
	}
	switch {
	case strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "uses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
		"i", "me", "my", "am", "about", "there", "these", "those",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
