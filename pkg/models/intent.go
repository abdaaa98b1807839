package models

import (
	"fmt"
	"strings"
	"time"
)

// Operation is the kind of answer a question asks for.
type Operation string

const (
	OpSelectList Operation = "SELECT_LIST"
	OpCount      Operation = "COUNT"
	OpAverage    Operation = "AVERAGE"
	OpMax        Operation = "MAX"
	OpMin        Operation = "MIN"
)

// IsAggregate reports whether the operation collapses rows into a single value.
func (o Operation) IsAggregate() bool {
	switch o {
	case OpCount, OpAverage, OpMax, OpMin:
		return true
	}
	return false
}

// NeedsColumn reports whether the aggregate needs a numeric column to operate on.
func (o Operation) NeedsColumn() bool {
	return o == OpAverage || o == OpMax || o == OpMin
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return o == OpSelectList || o.IsAggregate()
}

// Operator is a comparison operator usable in a predicate.
type Operator string

const (
	OpEq   Operator = "="
	OpGt   Operator = ">"
	OpLt   Operator = "<"
	OpGte  Operator = ">="
	OpLte  Operator = "<="
	OpLike Operator = "LIKE"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpLike:
		return true
	}
	return false
}

// ColumnRef names a column of a catalog table.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

func (c ColumnRef) String() string {
	return c.Table + "." + c.Column
}

// IsZero reports whether the reference is unset.
func (c ColumnRef) IsZero() bool {
	return c.Table == "" && c.Column == ""
}

// Predicate is a single WHERE condition. Exactly one of Value or Ref is set:
// Value is a literal that is always bound as a parameter, Ref compares against
// another column.
type Predicate struct {
	Column   ColumnRef  `json:"column"`
	Operator Operator   `json:"operator"`
	Value    any        `json:"value,omitempty"`
	Ref      *ColumnRef `json:"ref,omitempty"`
}

func (p Predicate) String() string {
	if p.Ref != nil {
		return fmt.Sprintf("%s %s %s", p.Column, p.Operator, p.Ref)
	}
	return fmt.Sprintf("%s %s %v", p.Column, p.Operator, p.Value)
}

// DateRange is a half-open interval: Start <= t < End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the width of the range.
func (r DateRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// Order is an explicit ordering requested by the question.
type Order struct {
	Column    ColumnRef     `json:"column"`
	Direction SortDirection `json:"direction"`
}

type IntentSource string

const (
	SourceRules    IntentSource = "rules"
	SourceFallback IntentSource = "fallback"
)

// Row caps for list questions, unless configured otherwise.
const (
	DefaultRowLimit = 100
	MaxRowLimit     = 1000
)

// Intent is the structured reading of a natural-language question.
// Values are produced whole by the extractor and treated as read-only afterwards.
type Intent struct {
	Target          string       `json:"target"`
	Operation       Operation    `json:"operation"`
	AggregateColumn string       `json:"aggregate_column,omitempty"`
	Predicates      []Predicate  `json:"predicates"`
	DateRange       *DateRange   `json:"date_range,omitempty"`
	Limit           int          `json:"limit,omitempty"`
	Order           *Order       `json:"order,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
	Source          IntentSource `json:"source,omitempty"`
}

// Clone returns a deep copy so callers can never alias another call's state.
func (i Intent) Clone() Intent {
	out := i
	if i.Predicates != nil {
		out.Predicates = make([]Predicate, len(i.Predicates))
		for idx, p := range i.Predicates {
			if p.Ref != nil {
				ref := *p.Ref
				p.Ref = &ref
			}
			out.Predicates[idx] = p
		}
	}
	if i.DateRange != nil {
		dr := *i.DateRange
		out.DateRange = &dr
	}
	if i.Order != nil {
		o := *i.Order
		out.Order = &o
	}
	if i.Warnings != nil {
		out.Warnings = append([]string(nil), i.Warnings...)
	}
	return out
}

// Summary renders a compact one-line description used in logs and history.
func (i Intent) Summary() string {
	var b strings.Builder
	b.WriteString(string(i.Operation))
	if i.AggregateColumn != "" {
		fmt.Fprintf(&b, "(%s)", i.AggregateColumn)
	}
	b.WriteString(" ")
	b.WriteString(i.Target)
	for _, p := range i.Predicates {
		b.WriteString(" [")
		b.WriteString(p.String())
		b.WriteString("]")
	}
	if i.DateRange != nil {
		fmt.Fprintf(&b, " [%s, %s)", i.DateRange.Start.Format(time.RFC3339), i.DateRange.End.Format(time.RFC3339))
	}
	return b.String()
}
