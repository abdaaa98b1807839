// Package vocabulary maps business terms and their synonyms to canonical
// schema objects.
package vocabulary

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/catalog"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// Kind is the kind of schema object an entry names.
type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// Entry is one business term and everything that names the same schema object.
type Entry struct {
	Term     string   `json:"term"`
	Kind     Kind     `json:"kind"`
	Table    string   `json:"table"`
	Column   string   `json:"column,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// Canonical returns "Table" for table entries and "Table.column" for column entries.
func (e Entry) Canonical() string {
	if e.Kind == KindColumn {
		return e.Table + "." + e.Column
	}
	return e.Table
}

// ColumnRef returns the column an entry names. Only meaningful for column entries.
func (e Entry) ColumnRef() models.ColumnRef {
	return models.ColumnRef{Table: e.Table, Column: e.Column}
}

// Match is an entry found in a tokenized question. Start and End are token
// positions, End exclusive.
type Match struct {
	Entry  Entry
	Phrase string
	Start  int
	End    int
}

// Registry is immutable once built and safe for concurrent use.
type Registry struct {
	entries []Entry
	// phrase -> index into entries
	index map[string]int
	// lower(table) -> phrase -> column
	columns map[string]map[string]string
	// longest phrase length in words, bounds the n-gram scan
	maxWords int
}

// New builds the registry from the terms and column aliases declared in cat.
func New(cat *catalog.Catalog) (*Registry, error) {
	specs := cat.Terms()
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		e := Entry{Term: s.Term, Kind: Kind(s.Kind), Synonyms: s.Synonyms}
		switch e.Kind {
		case KindTable:
			t, ok := cat.Table(s.Canonical)
			if !ok {
				return nil, apperrors.Configuration("term %q maps to unknown table %s", s.Term, s.Canonical)
			}
			e.Table = t.Name
		case KindColumn:
			ref, err := cat.ResolveRef(s.Canonical)
			if err != nil {
				return nil, apperrors.Configuration("term %q: %v", s.Term, err)
			}
			e.Table, e.Column = ref.Table, ref.Column
		default:
			return nil, apperrors.Configuration("term %q has unknown kind %q", s.Term, s.Kind)
		}
		entries = append(entries, e)
	}
	return NewRegistry(entries, cat)
}

// NewRegistry indexes entries. Every canonical object must exist in cat, and a
// synonym naming two different canonical objects is a configuration error.
func NewRegistry(entries []Entry, cat *catalog.Catalog) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int),
		columns: make(map[string]map[string]string),
	}

	for _, e := range entries {
		if err := validateEntry(e, cat); err != nil {
			return nil, err
		}
		idx := len(r.entries)
		r.entries = append(r.entries, e)
		for _, phrase := range append([]string{e.Term}, e.Synonyms...) {
			if err := r.add(catalog.NormalizePhrase(phrase), idx); err != nil {
				return nil, err
			}
		}
	}

	// Singular forms are derived, so explicit phrases always win over them.
	for idx, e := range r.entries {
		for _, phrase := range append([]string{e.Term}, e.Synonyms...) {
			p := catalog.NormalizePhrase(phrase)
			singular := inflection.Singular(p)
			if singular == p {
				continue
			}
			if _, taken := r.index[singular]; !taken {
				r.index[singular] = idx
			}
		}
	}

	for _, name := range cat.Tables() {
		t, _ := cat.Table(name)
		aliases := make(map[string]string)
		for _, col := range t.Columns {
			for _, phrase := range append([]string{col.Name}, col.Aliases...) {
				p := catalog.NormalizePhrase(phrase)
				if prev, dup := aliases[p]; dup && prev != col.Name {
					return nil, apperrors.Configuration("alias %q maps to both %s.%s and %s.%s", p, t.Name, prev, t.Name, col.Name)
				}
				aliases[p] = col.Name
				r.noteLength(p)
			}
		}
		r.columns[strings.ToLower(t.Name)] = aliases
	}
	return r, nil
}

func validateEntry(e Entry, cat *catalog.Catalog) error {
	if strings.TrimSpace(e.Term) == "" {
		return apperrors.Configuration("vocabulary entry for %s has no term", e.Canonical())
	}
	switch e.Kind {
	case KindTable:
		if _, ok := cat.Table(e.Table); !ok {
			return apperrors.Configuration("term %q maps to unknown table %s", e.Term, e.Table)
		}
	case KindColumn:
		if !cat.HasColumn(e.ColumnRef()) {
			return apperrors.Configuration("term %q maps to unknown column %s", e.Term, e.Canonical())
		}
	default:
		return apperrors.Configuration("term %q has unknown kind %q", e.Term, e.Kind)
	}
	return nil
}

func (r *Registry) add(phrase string, idx int) error {
	if phrase == "" {
		return nil
	}
	if prev, dup := r.index[phrase]; dup {
		if r.entries[prev].Canonical() == r.entries[idx].Canonical() {
			return nil
		}
		return apperrors.Configuration("synonym %q maps to both %s and %s",
			phrase, r.entries[prev].Canonical(), r.entries[idx].Canonical())
	}
	r.index[phrase] = idx
	r.noteLength(phrase)
	return nil
}

func (r *Registry) noteLength(phrase string) {
	if n := len(strings.Fields(phrase)); n > r.maxWords {
		r.maxWords = n
	}
}

func (r *Registry) lookup(phrase string) (Entry, bool) {
	if idx, ok := r.index[phrase]; ok {
		return r.entries[idx], true
	}
	if idx, ok := r.index[inflection.Singular(phrase)]; ok {
		return r.entries[idx], true
	}
	return Entry{}, false
}

// Resolve returns the entry a term or synonym names, case-insensitively.
// Only whole terms resolve: "log" names the logs table, "dialogue" names nothing.
func (r *Registry) Resolve(term string) (Entry, bool) {
	return r.lookup(catalog.NormalizePhrase(term))
}

// ResolveColumn resolves a column name or alias within one table.
func (r *Registry) ResolveColumn(table, phrase string) (string, bool) {
	aliases, ok := r.columns[strings.ToLower(table)]
	if !ok {
		return "", false
	}
	p := catalog.NormalizePhrase(phrase)
	if col, ok := aliases[p]; ok {
		return col, true
	}
	col, ok := aliases[inflection.Singular(p)]
	return col, ok
}

// ReverseLookup returns every phrase that names canonical ("Table" or
// "Table.column"), sorted.
func (r *Registry) ReverseLookup(canonical string) []string {
	var out []string
	for phrase, idx := range r.index {
		if strings.EqualFold(r.entries[idx].Canonical(), canonical) {
			out = append(out, phrase)
		}
	}
	sort.Strings(out)
	return out
}

// Entries returns all entries in declaration order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Scan finds vocabulary phrases in already-normalized tokens, in reading
// order. At each position the longest phrase wins and matches never overlap.
func (r *Registry) Scan(tokens []string) []Match {
	return r.scan(tokens, func(phrase string) (Entry, bool) {
		return r.lookup(phrase)
	})
}

// ScanColumns finds column names and aliases of table in tokens.
func (r *Registry) ScanColumns(table string, tokens []string) []Match {
	return r.scan(tokens, func(phrase string) (Entry, bool) {
		col, ok := r.ResolveColumn(table, phrase)
		if !ok {
			return Entry{}, false
		}
		return Entry{Term: phrase, Kind: KindColumn, Table: table, Column: col}, true
	})
}

func (r *Registry) scan(tokens []string, lookup func(string) (Entry, bool)) []Match {
	var matches []Match
	for i := 0; i < len(tokens); {
		n := min(r.maxWords, len(tokens)-i)
		found := false
		for ; n > 0; n-- {
			phrase := strings.Join(tokens[i:i+n], " ")
			if e, ok := lookup(phrase); ok {
				matches = append(matches, Match{Entry: e, Phrase: phrase, Start: i, End: i + n})
				found = true
				break
			}
		}
		if found {
			i += n
		} else {
			i++
		}
	}
	return matches
}
