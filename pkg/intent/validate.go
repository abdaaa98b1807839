package intent

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// Validate checks an Intent produced outside the rule-based reader (for
// example by a language model) against the catalog and returns a normalized
// copy. Any structural problem is reported as ErrAmbiguousIntent so callers
// treat an unusable interpretation like no interpretation at all.
func (e *Extractor) Validate(in models.Intent) (models.Intent, error) {
	table, ok := e.catalog.Table(in.Target)
	if !ok {
		return models.Intent{}, invalid("unknown target %q", in.Target)
	}

	b := newIntentBuilder(e.defaultLimit)
	b.target = table.Name
	b.source = in.Source

	op := in.Operation
	if op == "" {
		op = models.OpSelectList
	}
	if !op.Valid() {
		return models.Intent{}, invalid("unknown operation %q", in.Operation)
	}
	b.operation = op
	if op.NeedsColumn() {
		column := in.AggregateColumn
		if column == "" {
			column = table.ValueColumn
		}
		col, ok := table.Column(column)
		if !ok || !col.IsNumeric() {
			return models.Intent{}, invalid("%s needs a numeric column of %s, got %q", op, table.Name, in.AggregateColumn)
		}
		b.aggregateColumn = col.Name
	}

	for _, p := range in.Predicates {
		if p.Column.Table == "" {
			p.Column.Table = table.Name
		}
		col, ok := e.catalog.Column(p.Column)
		if !ok {
			return models.Intent{}, invalid("unknown column %s", p.Column)
		}
		t, _ := e.catalog.Table(p.Column.Table)
		p.Column = models.ColumnRef{Table: t.Name, Column: col.Name}
		if !p.Operator.Valid() {
			return models.Intent{}, invalid("unsupported operator %q", p.Operator)
		}
		if p.Ref != nil {
			ref := *p.Ref
			refCol, ok := e.catalog.Column(ref)
			if !ok {
				return models.Intent{}, invalid("unknown column %s", ref)
			}
			rt, _ := e.catalog.Table(ref.Table)
			p.Ref = &models.ColumnRef{Table: rt.Name, Column: refCol.Name}
			p.Value = nil
		} else if !isPrimitive(p.Value) {
			return models.Intent{}, invalid("predicate on %s has a non-scalar value", p.Column)
		}
		b.addPredicate(p)
	}

	if in.DateRange != nil {
		if table.TemporalColumn == "" {
			b.warn(fmt.Sprintf("ignored time range: %s has no time column", table.Name))
		} else if in.DateRange.End.Before(in.DateRange.Start) {
			return models.Intent{}, invalid("date range ends before it starts")
		} else {
			dr := *in.DateRange
			b.dateRange = &dr
		}
	}

	if in.Limit > 0 {
		b.limit = min(in.Limit, e.maxLimit)
	}
	if in.Order != nil {
		o := *in.Order
		if o.Column.Table == "" {
			o.Column.Table = table.Name
		}
		col, ok := table.Column(o.Column.Column)
		if !ok || !strings.EqualFold(o.Column.Table, table.Name) {
			return models.Intent{}, invalid("cannot order by %s", o.Column)
		}
		o.Column = models.ColumnRef{Table: table.Name, Column: col.Name}
		if o.Direction != models.SortAsc {
			o.Direction = models.SortDesc
		}
		b.order = &o
	}
	for _, w := range in.Warnings {
		b.warn(w)
	}
	return b.build(), nil
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int64, int32, bool:
		return true
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: interpretation rejected: %s", apperrors.ErrAmbiguousIntent, fmt.Sprintf(format, args...))
}
