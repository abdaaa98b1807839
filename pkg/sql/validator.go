// Package sql guards generated SQL before it reaches a backend.
package sql

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotReadOnly indicates the statement is not a plain SELECT.
	ErrNotReadOnly = errors.New("only SELECT statements may be executed")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the statement, strips one trailing semicolon and
// rejects any other semicolon outside literals, quoted identifiers and comments.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if normalized == "" {
		return ValidationResult{}
	}
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// ValidateReadOnly accepts a single SELECT that does not write through
// SELECT ... INTO. Every statement the query builder emits passes.
func ValidateReadOnly(sqlQuery string) ValidationResult {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return result
	}

	words := keywords(result.NormalizedSQL)
	if len(words) == 0 || words[0] != "SELECT" {
		return ValidationResult{Error: ErrNotReadOnly}
	}
	for _, w := range words[1:] {
		if w == "INTO" {
			return ValidationResult{Error: ErrNotReadOnly}
		}
	}
	return result
}

// lexState is where scan is inside a statement.
type lexState int

const (
	lexCode lexState = iota
	lexSingleQuote
	lexDoubleQuote
	lexBracket
	lexLineComment
	lexBlockComment
)

// scan walks sqlQuery calling code for every rune that is outside literals,
// quoted identifiers and comments. Returning false from code stops the walk.
func scan(sqlQuery string, code func(i int, r rune) bool) {
	state := lexCode
	runes := []rune(sqlQuery)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case lexCode:
			switch {
			case r == '\'':
				state = lexSingleQuote
			case r == '"':
				state = lexDoubleQuote
			case r == '[':
				state = lexBracket
			case r == '-' && next == '-':
				state = lexLineComment
				i++
			case r == '/' && next == '*':
				state = lexBlockComment
				i++
			default:
				if !code(i, r) {
					return
				}
			}
		case lexSingleQuote:
			// '' re-enters immediately; a backslash escapes the quote.
			if r == '\\' {
				i++
			} else if r == '\'' {
				state = lexCode
			}
		case lexDoubleQuote:
			if r == '\\' {
				i++
			} else if r == '"' {
				state = lexCode
			}
		case lexBracket:
			if r == ']' {
				state = lexCode
			}
		case lexLineComment:
			if r == '\n' {
				state = lexCode
			}
		case lexBlockComment:
			if r == '*' && next == '/' {
				state = lexCode
				i++
			}
		}
	}
}

// hasSemicolonOutsideStrings reports whether a statement separator remains.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	found := false
	scan(sqlQuery, func(_ int, r rune) bool {
		found = r == ';'
		return !found
	})
	return found
}

// keywords returns the upper-cased bare words of the statement in order.
func keywords(sqlQuery string) []string {
	var (
		words []string
		cur   strings.Builder
		last  = -1
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToUpper(cur.String()))
			cur.Reset()
		}
	}
	scan(sqlQuery, func(i int, r rune) bool {
		// A skipped literal or comment ends the current word.
		if i != last+1 {
			flush()
		}
		last = i
		if unicode.IsLetter(r) || r == '_' || (cur.Len() > 0 && unicode.IsDigit(r)) {
			cur.WriteRune(r)
		} else {
			flush()
		}
		return true
	})
	flush()
	return words
}

// stripTrailingSemicolon removes one trailing semicolon and the whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRightFunc(sqlQuery, unicode.IsSpace)
	if s, ok := strings.CutSuffix(sqlQuery, ";"); ok {
		return strings.TrimRightFunc(s, unicode.IsSpace)
	}
	return sqlQuery
}
