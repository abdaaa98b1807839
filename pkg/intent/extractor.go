// Package intent reads a natural-language question into a structured Intent
// using the business vocabulary, the schema catalog and the temporal parser.
package intent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/temporal"
	"github.com/ekaya-inc/sensorql/pkg/vocabulary"
)

// Extractor is safe for concurrent use; all of its state is read-only.
type Extractor struct {
	catalog  *catalog.Catalog
	vocab    *vocabulary.Registry
	temporal *temporal.Parser
	logger   *zap.Logger

	now          func() time.Time
	defaultLimit int
	maxLimit     int

	// lower(table) -> enum phrases usable in questions about that table
	enums map[string]*enumIndex
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the reference clock for relative time phrases.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLimits sets the default and maximum row limits for list questions.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Extractor) {
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			e.maxLimit = maxLimit
		}
	}
}

// NewExtractor wires an extractor over read-only reference data.
func NewExtractor(cat *catalog.Catalog, vocab *vocabulary.Registry, parser *temporal.Parser, logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		catalog:      cat,
		vocab:        vocab,
		temporal:     parser,
		logger:       logger.Named("intent"),
		now:          time.Now,
		defaultLimit: models.DefaultRowLimit,
		maxLimit:     models.MaxRowLimit,
		enums:        make(map[string]*enumIndex),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	for _, name := range cat.Tables() {
		e.enums[strings.ToLower(name)] = buildEnumIndex(cat, name)
	}
	return e
}

// DefaultLimit returns the row cap applied to list questions.
func (e *Extractor) DefaultLimit() int { return e.defaultLimit }

// MaxLimit returns the largest row cap a question or caller may ask for.
func (e *Extractor) MaxLimit() int { return e.maxLimit }

// Extract reads text relative to the extractor's clock.
func (e *Extractor) Extract(text string) (models.Intent, error) {
	return e.ExtractAt(text, e.now())
}

// ExtractAt reads text with relative time phrases resolved against ref.
// It fails with ErrAmbiguousIntent only when no target table can be found;
// every other part of the question degrades to a safe default.
func (e *Extractor) ExtractAt(text string, ref time.Time) (models.Intent, error) {
	q := newQuestion(text)
	b := newIntentBuilder(e.defaultLimit)

	if m, ok := e.temporal.Find(q.text, ref); ok {
		from, to := q.span(m.Start, m.End)
		q.claim(from, to, claimTemporal)
		dr := m.Range
		b.dateRange = &dr
	}

	comparisons := e.findComparisons(q)
	nameFilter, hasName := e.findName(q)

	matches := e.vocabMatches(q)
	target, ok := chooseTarget(matches)
	if !ok {
		return models.Intent{}, apperrors.Ambiguous(text)
	}
	table, _ := e.catalog.Table(target)
	b.target = table.Name

	mentions := e.numericMentions(q, table)

	e.applyCategorical(q, table, b)
	e.applyComparisons(q, table, comparisons, mentions, b)
	e.applyBreach(q, table, b)
	if hasName {
		e.applyName(table, nameFilter, b)
	}
	e.applyOperation(q, table, mentions, b)
	e.applyLimitAndOrder(q, table, b)

	intent := b.build()
	e.logger.Debug("Extracted intent",
		zap.String("question", text),
		zap.String("intent", intent.Summary()),
		zap.Int("warnings", len(intent.Warnings)))
	return intent, nil
}

func (e *Extractor) vocabMatches(q *question) []vocabulary.Match {
	var out []vocabulary.Match
	for _, m := range e.vocab.Scan(q.tokens) {
		if !q.free(m.Start, m.End, claimTemporal|claimComparison|claimName) {
			continue
		}
		c := claimColumnTerm
		if m.Entry.Kind == vocabulary.KindTable {
			c = claimTable
		}
		q.claim(m.Start, m.End, c)
		out = append(out, m)
	}
	return out
}

// chooseTarget prefers the first table term; a column term names its table
// only when no table term is present.
func chooseTarget(matches []vocabulary.Match) (string, bool) {
	for _, m := range matches {
		if m.Entry.Kind == vocabulary.KindTable {
			return m.Entry.Table, true
		}
	}
	for _, m := range matches {
		if m.Entry.Kind == vocabulary.KindColumn {
			return m.Entry.Table, true
		}
	}
	return "", false
}

type mention struct {
	column string
	pos    int
}

// numericMentions finds numeric columns of table named in the question.
func (e *Extractor) numericMentions(q *question, table *catalog.Table) []mention {
	var out []mention
	for _, m := range e.vocab.ScanColumns(table.Name, q.tokens) {
		col, ok := table.Column(m.Entry.Column)
		if !ok || !col.IsNumeric() || !q.free(m.Start, m.End, claimTemporal) {
			continue
		}
		out = append(out, mention{column: col.Name, pos: m.Start})
	}
	return out
}

type comparison struct {
	op       models.Operator
	value    float64
	from, to int
	text     string
}

func (e *Extractor) findComparisons(q *question) []comparison {
	type hit struct {
		start, end int
		cmps       []comparison
	}
	var hits []hit
	for _, c := range comparators {
		for _, loc := range c.pattern.FindAllStringSubmatchIndex(q.text, -1) {
			group := func(i int) string { return q.text[loc[2*i]:loc[2*i+1]] }
			h := hit{start: loc[0], end: loc[1]}
			switch {
			case c.between:
				lo, err1 := strconv.ParseFloat(group(1), 64)
				hi, err2 := strconv.ParseFloat(group(2), 64)
				if err1 != nil || err2 != nil {
					continue
				}
				if lo > hi {
					lo, hi = hi, lo
				}
				h.cmps = []comparison{{op: models.OpGte, value: lo}, {op: models.OpLte, value: hi}}
			case c.symbolic:
				v, err := strconv.ParseFloat(group(2), 64)
				if err != nil {
					continue
				}
				h.cmps = []comparison{{op: models.Operator(group(1)), value: v}}
			default:
				v, err := strconv.ParseFloat(group(1), 64)
				if err != nil {
					continue
				}
				h.cmps = []comparison{{op: c.op, value: v}}
			}
			hits = append(hits, h)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end-hits[i].start > hits[j].end-hits[j].start
	})

	var out []comparison
	lastEnd := -1
	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}
		from, to := q.span(h.start, h.end)
		if !q.free(from, to, claimTemporal) {
			continue
		}
		lastEnd = h.end
		q.claim(from, to, claimComparison)
		for _, c := range h.cmps {
			c.from, c.to = from, to
			c.text = strings.TrimSpace(q.text[h.start:h.end])
			out = append(out, c)
		}
	}
	return out
}

// applyComparisons binds each threshold to the nearest numeric column named in
// the question, else to the table's value column. Thresholds with nowhere to
// go are dropped with a warning.
func (e *Extractor) applyComparisons(q *question, table *catalog.Table, cmps []comparison, mentions []mention, b *intentBuilder) {
	for _, c := range cmps {
		column := nearestMention(mentions, c.from, c.to)
		if column == "" {
			column = table.ValueColumn
		}
		if column == "" {
			b.warn(fmt.Sprintf("ignored %q: %s has no numeric column to compare", c.text, table.Name))
			continue
		}
		b.addPredicate(models.Predicate{
			Column:   models.ColumnRef{Table: table.Name, Column: column},
			Operator: c.op,
			Value:    c.value,
		})
	}
}

func nearestMention(mentions []mention, from, to int) string {
	best, bestDist := "", -1
	for _, m := range mentions {
		var dist int
		switch {
		case m.pos < from:
			dist = from - m.pos
		case m.pos >= to:
			// Following mentions lose ties against preceding ones.
			dist = m.pos - to + 1
		default:
			dist = 0
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = m.column, dist
		}
	}
	return best
}

func (e *Extractor) applyBreach(q *question, table *catalog.Table, b *intentBuilder) {
	var word string
	for _, w := range breachWords(e.catalog) {
		if _, _, ok := q.findPhrase(w, claimComparison|claimEnum|claimTemporal); ok {
			word = w
			break
		}
	}
	if word == "" {
		return
	}
	if table.Breach == nil {
		b.warn(fmt.Sprintf("ignored %q: %s has no limits to compare against", word, table.Name))
		return
	}
	ref := table.Breach.RefColumn()
	b.addPredicate(models.Predicate{
		Column:   models.ColumnRef{Table: table.Name, Column: table.Breach.Column},
		Operator: table.Breach.Operator,
		Ref:      &ref,
	})
}

func breachWords(cat *catalog.Catalog) []string {
	var words []string
	seen := make(map[string]bool)
	for _, name := range cat.Tables() {
		t, _ := cat.Table(name)
		if t.Breach == nil {
			continue
		}
		for _, w := range t.Breach.Words {
			w = catalog.NormalizePhrase(w)
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	return words
}

type nameFilter struct {
	value string
}

func (e *Extractor) findName(q *question) (nameFilter, bool) {
	loc := namePattern.FindStringSubmatchIndex(q.text)
	if loc == nil {
		return nameFilter{}, false
	}
	from, to := q.span(loc[2], loc[3])
	if !q.free(from, to, claimTemporal|claimComparison) {
		return nameFilter{}, false
	}
	q.claim(from, to, claimName)
	return nameFilter{value: q.text[loc[2]:loc[3]]}, true
}

func (e *Extractor) applyName(table *catalog.Table, f nameFilter, b *intentBuilder) {
	if table.NameColumn == "" {
		b.warn(fmt.Sprintf("ignored name filter %q: %s has no name column", f.value, table.Name))
		return
	}
	b.addPredicate(models.Predicate{
		Column:   models.ColumnRef{Table: table.Name, Column: table.NameColumn},
		Operator: models.OpLike,
		Value:    "%" + f.value + "%",
	})
}

func (e *Extractor) applyOperation(q *question, table *catalog.Table, mentions []mention, b *intentBuilder) {
	op := models.OpSelectList
	var keyword string
find:
	for _, k := range operationKeywords {
		for _, phrase := range k.phrases {
			if _, _, ok := q.findPhrase(phrase, claimAny); ok {
				op, keyword = k.op, phrase
				break find
			}
		}
	}
	if !op.NeedsColumn() {
		b.operation = op
		return
	}

	column := ""
	if len(mentions) > 0 {
		column = mentions[0].column
	} else {
		column = table.ValueColumn
	}
	if column == "" {
		b.warn(fmt.Sprintf("%q needs a numeric column but %s has none; listing rows instead", keyword, table.Name))
		b.operation = models.OpSelectList
		return
	}
	b.operation = op
	b.aggregateColumn = column
}

func (e *Extractor) applyLimitAndOrder(q *question, table *catalog.Table, b *intentBuilder) {
	for _, loc := range limitPattern.FindAllStringSubmatchIndex(q.text, -1) {
		from, to := q.span(loc[0], loc[1])
		if !q.free(from, to, claimTemporal|claimComparison) {
			continue
		}
		q.claim(from, to, claimLimit)
		word := q.text[loc[2]:loc[3]]
		n, ok := limitNumberWords[q.text[loc[4]:loc[5]]]
		if !ok {
			n, _ = strconv.Atoi(q.text[loc[4]:loc[5]])
		}
		if n <= 0 {
			break
		}
		if n > e.maxLimit {
			b.warn(fmt.Sprintf("limit %d capped at %d rows", n, e.maxLimit))
			n = e.maxLimit
		}
		b.limit = n
		switch word {
		case "top":
			if table.ValueColumn != "" {
				b.order = &models.Order{Column: models.ColumnRef{Table: table.Name, Column: table.ValueColumn}, Direction: models.SortDesc}
			}
		case "first":
		default:
			if table.TemporalColumn != "" {
				b.order = &models.Order{Column: models.ColumnRef{Table: table.Name, Column: table.TemporalColumn}, Direction: models.SortDesc}
			}
		}
		break
	}

	if b.order != nil || table.TemporalColumn == "" {
		return
	}
	temporalCol := models.ColumnRef{Table: table.Name, Column: table.TemporalColumn}
	for _, w := range newestWords {
		if _, _, ok := q.findPhrase(w, claimTemporal|claimEnum|claimName); ok {
			b.order = &models.Order{Column: temporalCol, Direction: models.SortDesc}
			return
		}
	}
	for _, w := range oldestWords {
		if _, _, ok := q.findPhrase(w, claimTemporal|claimEnum|claimName); ok {
			b.order = &models.Order{Column: temporalCol, Direction: models.SortAsc}
			return
		}
	}
}

// enumIndex maps phrases to the enum columns and values they select for
// questions about one table. The table's own columns come first.
type enumIndex struct {
	phrases  map[string][]enumTarget
	maxWords int
}

type enumTarget struct {
	column models.ColumnRef
	value  any
}

func buildEnumIndex(cat *catalog.Catalog, tableName string) *enumIndex {
	idx := &enumIndex{phrases: make(map[string][]enumTarget)}
	add := func(ref models.ColumnRef, col catalog.Column) {
		for _, v := range col.Values {
			for _, p := range v.Phrases() {
				if p == "" {
					continue
				}
				idx.phrases[p] = append(idx.phrases[p], enumTarget{column: ref, value: v.Value})
				if n := len(strings.Fields(p)); n > idx.maxWords {
					idx.maxWords = n
				}
			}
		}
	}

	t, _ := cat.Table(tableName)
	for _, col := range t.EnumColumns() {
		add(models.ColumnRef{Table: t.Name, Column: col.Name}, col)
	}
	for _, ref := range cat.RelatedEnumColumns(t.Name) {
		col, _ := cat.Column(ref)
		add(ref, col)
	}
	return idx
}

func (idx *enumIndex) lookup(phrase string) ([]enumTarget, bool) {
	if ts, ok := idx.phrases[phrase]; ok {
		return ts, true
	}
	ts, ok := idx.phrases[inflection.Singular(phrase)]
	return ts, ok
}

// applyCategorical turns enum phrases into equality filters. The first phrase
// for a column wins; later phrases for the same column are ignored.
func (e *Extractor) applyCategorical(q *question, table *catalog.Table, b *intentBuilder) {
	idx := e.enums[strings.ToLower(table.Name)]
	if idx == nil || idx.maxWords == 0 {
		return
	}
	blocked := claimTemporal | claimTable | claimComparison | claimName
	seen := make(map[string]bool)

	for i := 0; i < len(q.tokens); {
		advanced := false
		for n := min(idx.maxWords, len(q.tokens)-i); n > 0; n-- {
			if !q.free(i, i+n, blocked) {
				continue
			}
			targets, ok := idx.lookup(q.phrase(i, i+n))
			if !ok {
				continue
			}
			for _, tgt := range targets {
				col := e.filterColumn(table, tgt.column)
				if seen[col.String()] {
					continue
				}
				seen[col.String()] = true
				b.addPredicate(models.Predicate{Column: col, Operator: models.OpEq, Value: tgt.value})
				break
			}
			q.claim(i, i+n, claimEnum)
			i += n
			advanced = true
			break
		}
		if !advanced {
			i++
		}
	}
}

// filterColumn moves a filter on another table's key onto the target's own
// referencing column when it has one, which avoids a join.
func (e *Extractor) filterColumn(table *catalog.Table, ref models.ColumnRef) models.ColumnRef {
	if ref.Table == table.Name {
		return ref
	}
	if col, ok := e.catalog.ReferencingColumn(table.Name, ref); ok {
		return models.ColumnRef{Table: table.Name, Column: col}
	}
	return ref
}
