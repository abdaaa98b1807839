package intent

import (
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// intentBuilder accumulates the pieces of an Intent while the question is
// read. build hands out an independent copy, so nothing the extractor does
// afterwards can reach a returned Intent.
type intentBuilder struct {
	target          string
	operation       models.Operation
	aggregateColumn string
	predicates      []models.Predicate
	dateRange       *models.DateRange
	limit           int
	order           *models.Order
	warnings        []string
	source          models.IntentSource
}

func newIntentBuilder(defaultLimit int) *intentBuilder {
	return &intentBuilder{
		operation: models.OpSelectList,
		limit:     defaultLimit,
		source:    models.SourceRules,
	}
}

func (b *intentBuilder) addPredicate(p models.Predicate) {
	for _, existing := range b.predicates {
		if samePredicate(existing, p) {
			return
		}
	}
	b.predicates = append(b.predicates, p)
}

func samePredicate(a, b models.Predicate) bool {
	if a.Column != b.Column || a.Operator != b.Operator {
		return false
	}
	if (a.Ref == nil) != (b.Ref == nil) {
		return false
	}
	if a.Ref != nil {
		return *a.Ref == *b.Ref
	}
	return a.Value == b.Value
}

func (b *intentBuilder) warn(msg string) {
	b.warnings = append(b.warnings, msg)
}

func (b *intentBuilder) build() models.Intent {
	predicates := b.predicates
	if predicates == nil {
		predicates = []models.Predicate{}
	}
	return models.Intent{
		Target:          b.target,
		Operation:       b.operation,
		AggregateColumn: b.aggregateColumn,
		Predicates:      predicates,
		DateRange:       b.dateRange,
		Limit:           b.limit,
		Order:           b.order,
		Warnings:        b.warnings,
		Source:          b.source,
	}.Clone()
}
