// Package temporal turns relative time phrases ("yesterday", "last week",
// "past 3 days") into concrete half-open date ranges.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

// Match is a recognized phrase and the range it denotes. Start and End are
// byte offsets into the lowercased input.
type Match struct {
	Phrase string
	Range  models.DateRange
	Start  int
	End    int
}

type resolver func(groups []string, ref time.Time) (models.DateRange, bool)

type rule struct {
	name    string
	pattern *regexp.Regexp
	resolve resolver
}

const numberPattern = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// rules are evaluated together; the earliest phrase in the text wins and the
// longest phrase breaks ties at the same position.
var rules = []rule{
	{"today", regexp.MustCompile(`\b(?:today|this day|current day)\b`), func(_ []string, ref time.Time) (models.DateRange, bool) {
		sod := startOfDay(ref)
		return span(sod, sod.AddDate(0, 0, 1)), true
	}},
	{"yesterday", regexp.MustCompile(`\b(?:yesterday|previous day)\b`), func(_ []string, ref time.Time) (models.DateRange, bool) {
		// Fixed 24h, so a DST change in ref's location does not stretch or shrink it.
		sod := startOfDay(ref)
		return span(sod.Add(-24*time.Hour), sod), true
	}},
	{"rolling", regexp.MustCompile(`\b(?:last|past|previous)\s+` + numberPattern + `\s+(hour|day|week|month)s?\b`), func(g []string, ref time.Time) (models.DateRange, bool) {
		n, ok := parseNumber(g[1])
		if !ok {
			return models.DateRange{}, false
		}
		return span(shift(ref, g[2], -n), ref), true
	}},
	{"ago", regexp.MustCompile(`\b` + numberPattern + `\s+(day|week|month)s?\s+ago\b`), func(g []string, ref time.Time) (models.DateRange, bool) {
		n, ok := parseNumber(g[1])
		if !ok {
			return models.DateRange{}, false
		}
		start := startOf(ref, g[2])
		start = shift(start, g[2], -n)
		return span(start, shift(start, g[2], 1)), true
	}},
	{"previous-unit", regexp.MustCompile(`\b(?:last|past|previous)\s+(hour|day|week|month|year)\b`), func(g []string, ref time.Time) (models.DateRange, bool) {
		if g[1] == "hour" {
			return span(ref.Add(-time.Hour), ref), true
		}
		end := startOf(ref, g[1])
		return span(shift(end, g[1], -1), end), true
	}},
	{"current-unit", regexp.MustCompile(`\bthis\s+(week|month|year)\b`), func(g []string, ref time.Time) (models.DateRange, bool) {
		start := startOf(ref, g[1])
		return span(start, shift(start, g[1], 1)), true
	}},
}

// Parser recognizes relative time phrases. The zero value is not usable; use NewParser.
type Parser struct {
	rules []rule
}

// NewParser returns a parser with the built-in phrase table.
func NewParser() *Parser {
	return &Parser{rules: rules}
}

// Parse returns the range denoted by the first time phrase in text, relative
// to ref. The boolean is false when text has no time phrase, meaning no time
// filter applies.
func (p *Parser) Parse(text string, ref time.Time) (models.DateRange, bool) {
	m, ok := p.Find(text, ref)
	return m.Range, ok
}

// Find is Parse with the matched phrase and its position.
func (p *Parser) Find(text string, ref time.Time) (Match, bool) {
	lower := strings.ToLower(text)

	var best Match
	found := false
	for _, r := range p.rules {
		for _, loc := range r.pattern.FindAllStringSubmatchIndex(lower, -1) {
			start, end := loc[0], loc[1]
			if found && (start > best.Start || (start == best.Start && end-start <= best.End-best.Start)) {
				continue
			}
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] >= 0 {
					groups[i] = lower[loc[2*i]:loc[2*i+1]]
				}
			}
			dr, ok := r.resolve(groups, ref)
			if !ok {
				continue
			}
			best = Match{Phrase: lower[start:end], Range: dr, Start: start, End: end}
			found = true
		}
	}
	return best, found
}

func parseNumber(s string) (int, bool) {
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func span(start, end time.Time) models.DateRange {
	if end.Before(start) {
		start, end = end, start
	}
	return models.DateRange{Start: start, End: end}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns Monday 00:00 of t's ISO week.
func startOfWeek(t time.Time) time.Time {
	sod := startOfDay(t)
	offset := (int(sod.Weekday()) + 6) % 7
	return sod.AddDate(0, 0, -offset)
}

func startOf(t time.Time, unit string) time.Time {
	switch unit {
	case "week":
		return startOfWeek(t)
	case "month":
		y, m, _ := t.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	case "year":
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	case "hour":
		return t.Truncate(time.Hour)
	default:
		return startOfDay(t)
	}
}

func shift(t time.Time, unit string, n int) time.Time {
	switch unit {
	case "hour":
		return t.Add(time.Duration(n) * time.Hour)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "month":
		return t.AddDate(0, n, 0)
	case "year":
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}
