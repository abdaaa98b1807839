// Package catalog holds the read-only schema reference data the query engine
// resolves questions against: tables, typed columns, enum values, one-hop join
// paths and the business vocabulary that names them.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

//go:embed iot.yaml
var defaultCatalog []byte

// ColumnType is the semantic type of a column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeNumber    ColumnType = "number"
	TypeTimestamp ColumnType = "timestamp"
	TypeEnum      ColumnType = "enum"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnumValue is one stored value of an enum column and the phrases that name it.
type EnumValue struct {
	Value   any      `yaml:"value"`
	Aliases []string `yaml:"aliases"`
}

// Phrases returns the lowercase phrases a question may use for this value.
// String values contribute their own spelling with underscores read as spaces.
func (v EnumValue) Phrases() []string {
	var out []string
	if s, ok := v.Value.(string); ok {
		out = append(out, NormalizePhrase(s))
	}
	for _, a := range v.Aliases {
		out = append(out, NormalizePhrase(a))
	}
	return out
}

// Column describes one column of a table.
type Column struct {
	Name    string      `yaml:"name"`
	Type    ColumnType  `yaml:"type"`
	Aliases []string    `yaml:"aliases"`
	Values  []EnumValue `yaml:"values"`
	// Related enum columns may be filtered from questions about other tables.
	Related bool `yaml:"related"`
	// References names the Table.column this column holds keys of.
	References string `yaml:"references"`
	// Display marks the column as part of list output. Unset means displayed.
	Display *bool `yaml:"display"`
}

// IsNumeric reports whether the column can be aggregated or compared against numbers.
func (c Column) IsNumeric() bool {
	return c.Type == TypeNumber
}

// Displayed reports whether the column belongs in list output.
func (c Column) Displayed() bool {
	return c.Display == nil || *c.Display
}

// BreachRule turns words like "exceeded" into a column-to-column comparison
// against a joined limits table.
type BreachRule struct {
	Words    []string         `yaml:"words"`
	Column   string           `yaml:"column"`
	Operator models.Operator  `yaml:"operator"`
	Ref      string           `yaml:"ref"`
	ref      models.ColumnRef `yaml:"-"`
}

// RefColumn returns the parsed reference column.
func (b BreachRule) RefColumn() models.ColumnRef {
	return b.ref
}

// Table describes one table.
type Table struct {
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	IDColumn       string      `yaml:"id_column"`
	TemporalColumn string      `yaml:"temporal_column"`
	ValueColumn    string      `yaml:"value_column"`
	NameColumn     string      `yaml:"name_column"`
	Columns        []Column    `yaml:"columns"`
	Enrich         []string    `yaml:"enrich"`
	Breach         *BreachRule `yaml:"breach"`

	enrich  []models.ColumnRef
	columns map[string]int
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	idx, ok := t.columns[strings.ToLower(name)]
	if !ok {
		return Column{}, false
	}
	return t.Columns[idx], true
}

// EnrichColumns returns the display columns pulled from joined tables for list output.
func (t *Table) EnrichColumns() []models.ColumnRef {
	return append([]models.ColumnRef(nil), t.enrich...)
}

// EnumColumns returns the table's enum columns in declaration order.
func (t *Table) EnumColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.Type == TypeEnum {
			out = append(out, c)
		}
	}
	return out
}

// Join is a static one-hop join from one table's column to another's.
type Join struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`

	from models.ColumnRef
	to   models.ColumnRef
}

// FromColumn returns the column on the driving side.
func (j Join) FromColumn() models.ColumnRef { return j.from }

// ToColumn returns the column on the joined side.
func (j Join) ToColumn() models.ColumnRef { return j.to }

// TermSpec is one vocabulary entry as written in the catalog file.
type TermSpec struct {
	Term      string   `yaml:"term"`
	Kind      string   `yaml:"kind"`
	Canonical string   `yaml:"canonical"`
	Synonyms  []string `yaml:"synonyms"`
}

type document struct {
	Tables []*Table   `yaml:"tables"`
	Joins  []*Join    `yaml:"joins"`
	Terms  []TermSpec `yaml:"terms"`
}

// Catalog is immutable after Load and safe for concurrent reads.
type Catalog struct {
	tables []*Table
	byName map[string]*Table
	joins  []Join
	terms  []TermSpec
}

// Default parses the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile parses a catalog file, or the embedded default when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Configuration("read catalog %s: %v", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML. Any inconsistency is a configuration error.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Configuration("decode catalog: %v", err)
	}

	c := &Catalog{byName: make(map[string]*Table, len(doc.Tables))}
	for _, t := range doc.Tables {
		if err := c.addTable(t); err != nil {
			return nil, err
		}
	}
	for _, t := range c.tables {
		if err := c.resolveTableRefs(t); err != nil {
			return nil, err
		}
	}
	for _, j := range doc.Joins {
		if err := c.addJoin(j); err != nil {
			return nil, err
		}
	}
	for _, t := range c.tables {
		for _, ref := range t.enrich {
			if ref.Table == t.Name {
				continue
			}
			if _, ok := c.JoinBetween(t.Name, ref.Table); !ok {
				return nil, apperrors.Configuration("table %s enriches from %s without a join", t.Name, ref)
			}
		}
		if t.Breach != nil {
			if _, ok := c.JoinBetween(t.Name, t.Breach.ref.Table); !ok {
				return nil, apperrors.Configuration("table %s breach rule references %s without a join", t.Name, t.Breach.Ref)
			}
		}
	}
	c.terms = doc.Terms
	return c, nil
}

func (c *Catalog) addTable(t *Table) error {
	if !identifierPattern.MatchString(t.Name) {
		return apperrors.Configuration("invalid table name %q", t.Name)
	}
	key := strings.ToLower(t.Name)
	if _, dup := c.byName[key]; dup {
		return apperrors.Configuration("duplicate table %s", t.Name)
	}
	t.columns = make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		if !identifierPattern.MatchString(col.Name) {
			return apperrors.Configuration("invalid column name %s.%q", t.Name, col.Name)
		}
		switch col.Type {
		case TypeText, TypeNumber, TypeTimestamp:
		case TypeEnum:
			if len(col.Values) == 0 {
				return apperrors.Configuration("enum column %s.%s has no values", t.Name, col.Name)
			}
		default:
			return apperrors.Configuration("column %s.%s has unknown type %q", t.Name, col.Name, col.Type)
		}
		ckey := strings.ToLower(col.Name)
		if _, dup := t.columns[ckey]; dup {
			return apperrors.Configuration("duplicate column %s.%s", t.Name, col.Name)
		}
		t.columns[ckey] = i
	}
	if t.IDColumn == "" {
		return apperrors.Configuration("table %s has no id_column", t.Name)
	}
	for _, name := range []string{t.IDColumn, t.TemporalColumn, t.ValueColumn, t.NameColumn} {
		if name == "" {
			continue
		}
		if _, ok := t.Column(name); !ok {
			return apperrors.Configuration("table %s names unknown column %s", t.Name, name)
		}
	}
	if t.TemporalColumn != "" {
		if col, _ := t.Column(t.TemporalColumn); col.Type != TypeTimestamp {
			return apperrors.Configuration("temporal column %s.%s is not a timestamp", t.Name, col.Name)
		}
	}
	if t.ValueColumn != "" {
		if col, _ := t.Column(t.ValueColumn); !col.IsNumeric() {
			return apperrors.Configuration("value column %s.%s is not numeric", t.Name, col.Name)
		}
	}
	c.tables = append(c.tables, t)
	c.byName[key] = t
	return nil
}

func (c *Catalog) resolveTableRefs(t *Table) error {
	for _, e := range t.Enrich {
		ref, err := c.parseRef(e)
		if err != nil {
			return err
		}
		t.enrich = append(t.enrich, ref)
	}
	for _, col := range t.Columns {
		if col.References == "" {
			continue
		}
		if _, err := c.parseRef(col.References); err != nil {
			return err
		}
	}
	if t.Breach != nil {
		if _, ok := t.Column(t.Breach.Column); !ok {
			return apperrors.Configuration("breach rule on %s names unknown column %s", t.Name, t.Breach.Column)
		}
		if !t.Breach.Operator.Valid() {
			return apperrors.Configuration("breach rule on %s has invalid operator %q", t.Name, t.Breach.Operator)
		}
		ref, err := c.parseRef(t.Breach.Ref)
		if err != nil {
			return err
		}
		t.Breach.ref = ref
	}
	return nil
}

func (c *Catalog) addJoin(j *Join) error {
	from, err := c.parseRef(j.From)
	if err != nil {
		return err
	}
	to, err := c.parseRef(j.To)
	if err != nil {
		return err
	}
	if from.Table == to.Table {
		return apperrors.Configuration("join %s -> %s is a self join", j.From, j.To)
	}
	if _, dup := c.JoinBetween(from.Table, to.Table); dup {
		return apperrors.Configuration("duplicate join %s -> %s", from.Table, to.Table)
	}
	j.from, j.to = from, to
	c.joins = append(c.joins, *j)
	return nil
}

// parseRef resolves "Table.column" to canonical spellings.
func (c *Catalog) parseRef(s string) (models.ColumnRef, error) {
	table, column, ok := strings.Cut(s, ".")
	if !ok {
		return models.ColumnRef{}, apperrors.Configuration("column reference %q is not Table.column", s)
	}
	t, ok := c.Table(table)
	if !ok {
		return models.ColumnRef{}, apperrors.Configuration("column reference %q names unknown table", s)
	}
	col, ok := t.Column(column)
	if !ok {
		return models.ColumnRef{}, apperrors.Configuration("column reference %q names unknown column", s)
	}
	return models.ColumnRef{Table: t.Name, Column: col.Name}, nil
}

// ResolveRef parses a "Table.column" reference against the catalog.
func (c *Catalog) ResolveRef(s string) (models.ColumnRef, error) {
	return c.parseRef(s)
}

// Table returns the named table, case-insensitively.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.byName[strings.ToLower(name)]
	return t, ok
}

// Tables returns table names in declaration order.
func (c *Catalog) Tables() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	return names
}

// Column returns a column by reference.
func (c *Catalog) Column(ref models.ColumnRef) (Column, bool) {
	t, ok := c.Table(ref.Table)
	if !ok {
		return Column{}, false
	}
	return t.Column(ref.Column)
}

// HasColumn reports whether the reference names an existing column.
func (c *Catalog) HasColumn(ref models.ColumnRef) bool {
	_, ok := c.Column(ref)
	return ok
}

// JoinBetween returns the declared one-hop join driven by table from.
func (c *Catalog) JoinBetween(from, to string) (Join, bool) {
	for _, j := range c.joins {
		if strings.EqualFold(j.from.Table, from) && strings.EqualFold(j.to.Table, to) {
			return j, true
		}
	}
	return Join{}, false
}

// Joins returns all declared joins.
func (c *Catalog) Joins() []Join {
	return append([]Join(nil), c.joins...)
}

// RelatedEnumColumns returns enum columns of other tables that questions about
// table may filter on.
func (c *Catalog) RelatedEnumColumns(table string) []models.ColumnRef {
	var out []models.ColumnRef
	for _, t := range c.tables {
		if strings.EqualFold(t.Name, table) {
			continue
		}
		for _, col := range t.Columns {
			if col.Type == TypeEnum && col.Related {
				out = append(out, models.ColumnRef{Table: t.Name, Column: col.Name})
			}
		}
	}
	return out
}

// ReferencingColumn returns the column of table that holds keys of target, if any.
func (c *Catalog) ReferencingColumn(table string, target models.ColumnRef) (string, bool) {
	t, ok := c.Table(table)
	if !ok {
		return "", false
	}
	want := target.String()
	for _, col := range t.Columns {
		if col.References == "" {
			continue
		}
		ref, err := c.parseRef(col.References)
		if err == nil && ref.String() == want {
			return col.Name, true
		}
	}
	return "", false
}

// Terms returns the vocabulary entries declared alongside the schema.
func (c *Catalog) Terms() []TermSpec {
	return append([]TermSpec(nil), c.terms...)
}

// NormalizePhrase lowercases a phrase, reads underscores as spaces and
// collapses whitespace.
func NormalizePhrase(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "_", " "))
	return strings.Join(strings.Fields(s), " ")
}

// Describe renders the catalog as compact text for prompts and CLI help.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, t := range c.tables {
		fmt.Fprintf(&b, "%s", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, " (%s)", t.Description)
		}
		b.WriteString(":\n")
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "  - %s %s", col.Name, col.Type)
			if col.Type == TypeEnum {
				vals := make([]string, len(col.Values))
				for i, v := range col.Values {
					vals[i] = fmt.Sprint(v.Value)
				}
				fmt.Fprintf(&b, " [%s]", strings.Join(vals, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
