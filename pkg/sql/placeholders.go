package sql

import (
	"strconv"
	"strings"
	"unicode"
)

// RewritePlaceholders replaces each $N placeholder outside literals, quoted
// identifiers and comments with render(N). Adapters use it to turn the
// builder's $N style into their driver's syntax.
func RewritePlaceholders(query string, render func(n int) string) string {
	runes := []rune(query)

	type span struct{ start, end, n int }
	var spans []span
	scan(query, func(i int, r rune) bool {
		if r != '$' {
			return true
		}
		j := i + 1
		for j < len(runes) && unicode.IsDigit(runes[j]) {
			j++
		}
		if j > i+1 {
			n, _ := strconv.Atoi(string(runes[i+1 : j]))
			spans = append(spans, span{i, j, n})
		}
		return true
	})
	if len(spans) == 0 {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 2*len(spans))
	prev := 0
	for _, s := range spans {
		sb.WriteString(string(runes[prev:s.start]))
		sb.WriteString(render(s.n))
		prev = s.end
	}
	sb.WriteString(string(runes[prev:]))
	return sb.String()
}
