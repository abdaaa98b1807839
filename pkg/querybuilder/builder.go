// Package querybuilder turns a validated Intent into a parameterized SELECT
// for one SQL dialect. Identifiers come only from the catalog; every literal,
// the row limit included, is bound as a parameter.
package querybuilder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

const targetAlias = "t"

// Builder is immutable and safe for concurrent use.
type Builder struct {
	catalog      *catalog.Catalog
	dialect      Dialect
	defaultLimit int
	maxLimit     int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLimits sets the row cap used when an intent has none, and the hard cap.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(b *Builder) {
		if defaultLimit > 0 {
			b.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			b.maxLimit = maxLimit
		}
	}
}

func New(cat *catalog.Catalog, dialect Dialect, opts ...Option) *Builder {
	b := &Builder{
		catalog:      cat,
		dialect:      dialect,
		defaultLimit: models.DefaultRowLimit,
		maxLimit:     models.MaxRowLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dialect returns the dialect plans are rendered for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Build renders in as a single SELECT. It fails with ErrUnsupportedJoin when
// a predicate needs a table that has no declared join from the target.
func (b *Builder) Build(in models.Intent) (*models.QueryPlan, error) {
	target, ok := b.catalog.Table(in.Target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", apperrors.ErrAmbiguousIntent, in.Target)
	}
	if !in.Operation.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", apperrors.ErrAmbiguousIntent, in.Operation)
	}

	s := &statement{
		builder: b,
		target:  target,
		byTable: make(map[string]*joinRef),
	}

	list := !in.Operation.IsAggregate()
	if list {
		// Enrichment joins first so their aliases stay stable across questions.
		for _, ref := range target.EnrichColumns() {
			if _, err := s.alias(ref.Table, false); err != nil {
				return nil, err
			}
		}
	}

	var where []string
	for _, p := range in.Predicates {
		cond, err := s.predicate(p)
		if err != nil {
			return nil, err
		}
		where = append(where, cond)
	}

	hasRange := false
	if in.DateRange != nil {
		if target.TemporalColumn == "" {
			s.warnings = append(s.warnings, fmt.Sprintf("ignored time range: %s has no time column", target.Name))
		} else {
			col := s.qualify(targetAlias, target.TemporalColumn)
			where = append(where,
				col+" >= "+s.bind(in.DateRange.Start),
				col+" < "+s.bind(in.DateRange.End))
			hasRange = true
		}
	}

	selectList, err := s.selectList(in, list)
	if err != nil {
		return nil, err
	}

	var orderBy string
	if list {
		orderBy, err = s.orderBy(in, hasRange)
		if err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectList)
	sb.WriteString("\nFROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(target.Name))
	sb.WriteString(" " + targetAlias)
	joined := make([]string, 0, len(s.joins))
	for _, j := range s.joins {
		kind := "LEFT JOIN"
		if j.inner {
			kind = "JOIN"
		}
		fmt.Fprintf(&sb, "\n%s %s %s ON %s = %s",
			kind,
			b.dialect.QuoteIdentifier(j.table),
			j.alias,
			s.qualify(targetAlias, j.join.FromColumn().Column),
			s.qualify(j.alias, j.join.ToColumn().Column))
		joined = append(joined, j.table)
	}
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, "\n  AND "))
	}
	if list {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(orderBy)
		sb.WriteString("\n")
		sb.WriteString(b.dialect.limitClause(s.bind(b.limitFor(in.Limit))))
	}

	params := s.params
	if params == nil {
		params = []any{}
	}
	return &models.QueryPlan{
		SQL:       sb.String(),
		Params:    params,
		Joins:     joined,
		Dialect:   string(b.dialect),
		Target:    target.Name,
		Operation: in.Operation,
		Warnings:  s.warnings,
	}, nil
}

func (b *Builder) limitFor(n int) int {
	if n <= 0 {
		n = b.defaultLimit
	}
	return min(n, b.maxLimit)
}

type joinRef struct {
	table string
	alias string
	join  catalog.Join
	inner bool
}

// statement accumulates the parts of one query while it is built.
type statement struct {
	builder  *Builder
	target   *catalog.Table
	params   []any
	joins    []*joinRef
	byTable  map[string]*joinRef
	warnings []string
}

func (s *statement) bind(v any) string {
	s.params = append(s.params, v)
	return "$" + strconv.Itoa(len(s.params))
}

func (s *statement) qualify(alias, column string) string {
	return alias + "." + s.builder.dialect.QuoteIdentifier(column)
}

// alias returns the alias of table in this statement, adding the declared
// one-hop join from the target when needed. inner marks the join as
// required by a filter.
func (s *statement) alias(table string, inner bool) (string, error) {
	if strings.EqualFold(table, s.target.Name) {
		return targetAlias, nil
	}
	key := strings.ToLower(table)
	if j, ok := s.byTable[key]; ok {
		j.inner = j.inner || inner
		return j.alias, nil
	}
	join, ok := s.builder.catalog.JoinBetween(s.target.Name, table)
	if !ok {
		return "", apperrors.UnsupportedJoin(s.target.Name, table)
	}
	j := &joinRef{
		table: join.ToColumn().Table,
		alias: "j" + strconv.Itoa(len(s.joins)+1),
		join:  join,
		inner: inner,
	}
	s.joins = append(s.joins, j)
	s.byTable[key] = j
	return j.alias, nil
}

func (s *statement) column(ref models.ColumnRef, inner bool) (string, error) {
	if ref.Table == "" {
		ref.Table = s.target.Name
	}
	col, ok := s.builder.catalog.Column(ref)
	if !ok {
		return "", fmt.Errorf("%w: unknown column %s", apperrors.ErrAmbiguousIntent, ref)
	}
	alias, err := s.alias(ref.Table, inner)
	if err != nil {
		return "", err
	}
	return s.qualify(alias, col.Name), nil
}

func (s *statement) predicate(p models.Predicate) (string, error) {
	if !p.Operator.Valid() {
		return "", fmt.Errorf("%w: unsupported operator %q", apperrors.ErrAmbiguousIntent, p.Operator)
	}
	lhs, err := s.column(p.Column, true)
	if err != nil {
		return "", err
	}
	switch {
	case p.Ref != nil:
		rhs, err := s.column(*p.Ref, true)
		if err != nil {
			return "", err
		}
		return lhs + " " + string(p.Operator) + " " + rhs, nil
	case p.Value == nil:
		return "", fmt.Errorf("%w: predicate on %s has no value", apperrors.ErrAmbiguousIntent, p.Column)
	case p.Operator == models.OpLike:
		return "LOWER(" + lhs + ") LIKE " + s.bind(strings.ToLower(fmt.Sprint(p.Value))), nil
	default:
		return lhs + " " + string(p.Operator) + " " + s.bind(p.Value), nil
	}
}

var aggregateNames = map[models.Operation]string{
	models.OpAverage: "average",
	models.OpMax:     "max",
	models.OpMin:     "min",
}

var aggregateFuncs = map[models.Operation]string{
	models.OpAverage: "AVG",
	models.OpMax:     "MAX",
	models.OpMin:     "MIN",
}

func (s *statement) selectList(in models.Intent, list bool) (string, error) {
	d := s.builder.dialect
	if in.Operation == models.OpCount {
		return "COUNT(*) AS " + d.QuoteIdentifier("count"), nil
	}
	if !list {
		column := in.AggregateColumn
		if column == "" {
			column = s.target.ValueColumn
		}
		col, ok := s.target.Column(column)
		if !ok || !col.IsNumeric() {
			return "", fmt.Errorf("%w: %s needs a numeric column of %s", apperrors.ErrAmbiguousIntent, in.Operation, s.target.Name)
		}
		return fmt.Sprintf("%s(%s) AS %s",
			aggregateFuncs[in.Operation],
			s.qualify(targetAlias, col.Name),
			d.QuoteIdentifier(aggregateNames[in.Operation])), nil
	}

	var cols []string
	names := make(map[string]bool)
	for _, col := range s.target.Columns {
		if !col.Displayed() {
			continue
		}
		cols = append(cols, s.qualify(targetAlias, col.Name))
		names[strings.ToLower(col.Name)] = true
	}
	for _, ref := range s.target.EnrichColumns() {
		alias, err := s.alias(ref.Table, false)
		if err != nil {
			return "", err
		}
		name := ref.Column
		if names[strings.ToLower(name)] {
			name = strings.ToLower(ref.Table) + "_" + ref.Column
		}
		names[strings.ToLower(name)] = true
		cols = append(cols, s.qualify(alias, ref.Column)+" AS "+d.QuoteIdentifier(name))
	}
	return strings.Join(cols, ", "), nil
}

func (s *statement) orderBy(in models.Intent, hasRange bool) (string, error) {
	var primary string
	var direction models.SortDirection
	switch {
	case in.Order != nil:
		col, err := s.column(in.Order.Column, false)
		if err != nil {
			return "", err
		}
		primary, direction = col, in.Order.Direction
		if direction != models.SortAsc {
			direction = models.SortDesc
		}
	case hasRange:
		primary, direction = s.qualify(targetAlias, s.target.TemporalColumn), models.SortDesc
	default:
		primary, direction = s.qualify(targetAlias, s.target.IDColumn), models.SortAsc
	}
	id := s.qualify(targetAlias, s.target.IDColumn)
	if primary == id {
		return primary + " " + string(direction), nil
	}
	// id breaks ties so repeated questions return rows in the same order.
	return primary + " " + string(direction) + ", " + id + " ASC", nil
}
