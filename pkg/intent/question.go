package intent

import (
	"strings"
	"unicode"
)

// claim records why a token is already spoken for, so later passes do not
// read the same words twice.
type claim uint8

const (
	claimTemporal claim = 1 << iota
	claimTable
	claimColumnTerm
	claimEnum
	claimComparison
	claimLimit
	claimName
)

const claimAny = claimTemporal | claimTable | claimColumnTerm | claimEnum | claimComparison | claimLimit | claimName

// question is a normalized, tokenized question with per-token claims.
type question struct {
	raw     string
	text    string
	tokens  []string
	offsets []int
	claims  []claim
}

func newQuestion(raw string) *question {
	q := &question{raw: raw, text: Normalize(raw)}
	pos := 0
	for _, tok := range strings.Fields(q.text) {
		idx := strings.Index(q.text[pos:], tok) + pos
		q.tokens = append(q.tokens, tok)
		q.offsets = append(q.offsets, idx)
		pos = idx + len(tok)
	}
	q.claims = make([]claim, len(q.tokens))
	return q
}

// Normalize lowercases text and strips punctuation that is not part of a
// number or a comparison symbol. Underscores read as spaces.
func Normalize(text string) string {
	runes := []rune(strings.ToLower(text))
	var b strings.Builder
	b.Grow(len(runes))

	isDigit := func(i int) bool { return i >= 0 && i < len(runes) && unicode.IsDigit(runes[i]) }

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' && isDigit(i-1) && isDigit(i+1):
			b.WriteRune(r)
		case r == '-' && isDigit(i+1) && (i == 0 || unicode.IsSpace(runes[i-1]) || strings.ContainsRune("<>=", runes[i-1])):
			b.WriteRune(r)
		case r == '<' || r == '>' || r == '=':
			// Comparison symbols stand alone so ">=30" reads as ">= 30".
			if i > 0 && !strings.ContainsRune("<>=", runes[i-1]) {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
			if i+1 < len(runes) && !strings.ContainsRune("<>=", runes[i+1]) {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// span converts a byte range of q.text to the token range it covers.
func (q *question) span(start, end int) (int, int) {
	from, to := len(q.tokens), 0
	for i, off := range q.offsets {
		tokEnd := off + len(q.tokens[i])
		if tokEnd > start && off < end {
			if i < from {
				from = i
			}
			to = i + 1
		}
	}
	if from > to {
		return 0, 0
	}
	return from, to
}

func (q *question) claim(from, to int, c claim) {
	for i := from; i < to && i < len(q.claims); i++ {
		q.claims[i] |= c
	}
}

// free reports whether no token in [from, to) carries any of the mask's claims.
func (q *question) free(from, to int, mask claim) bool {
	for i := from; i < to; i++ {
		if q.claims[i]&mask != 0 {
			return false
		}
	}
	return true
}

// findPhrase returns the first occurrence of phrase whose tokens are free of mask.
func (q *question) findPhrase(phrase string, mask claim) (int, int, bool) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return 0, 0, false
	}
	for i := 0; i+len(words) <= len(q.tokens); i++ {
		matched := true
		for j, w := range words {
			if q.tokens[i+j] != w {
				matched = false
				break
			}
		}
		if matched && q.free(i, i+len(words), mask) {
			return i, i + len(words), true
		}
	}
	return 0, 0, false
}

func (q *question) phrase(from, to int) string {
	return strings.Join(q.tokens[from:to], " ")
}
