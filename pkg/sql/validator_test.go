package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain select", "SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"trailing semicolon and whitespace", "SELECT 1;  \n", "SELECT 1"},
		{"surrounding whitespace", "  SELECT 1  ", "SELECT 1"},
		{"semicolon in string literal", `SELECT * FROM "AlertLog" WHERE "message" = 'a;b'`, `SELECT * FROM "AlertLog" WHERE "message" = 'a;b'`},
		{"semicolon in quoted identifier", `SELECT "a;b" FROM "RepData"`, `SELECT "a;b" FROM "RepData"`},
		{"semicolon in bracket identifier", `SELECT TOP 10 [a;b] FROM [RepData];`, `SELECT TOP 10 [a;b] FROM [RepData]`},
		{"doubled quote escape", "SELECT * FROM \"LocRef\" WHERE \"name\" = 'O''Brien;'", "SELECT * FROM \"LocRef\" WHERE \"name\" = 'O''Brien;'"},
		{"multiline", "SELECT *\nFROM \"RepData\"\nWHERE \"id\" = $1;", "SELECT *\nFROM \"RepData\"\nWHERE \"id\" = $1"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			assert.NoError(t, result.Error)
			assert.Equal(t, tt.expected, result.NormalizedSQL)
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	for _, input := range []string{
		"SELECT 1; SELECT 2",
		"SELECT 1;SELECT 2;",
		`SELECT * FROM "RepData"; DROP TABLE "RepData"`,
		"SELECT 'a;b'; DELETE FROM \"AlertLog\"",
	} {
		t.Run(input, func(t *testing.T) {
			result := ValidateAndNormalize(input)
			assert.ErrorIs(t, result.Error, ErrMultipleStatements)
			assert.Empty(t, result.NormalizedSQL)
		})
	}
}

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"select", `SELECT "id" FROM "RepData" LIMIT 10`, nil},
		{"lowercase select", `select count(*) from "AlertLog"`, nil},
		{"parenthesized select", `(SELECT 1)`, nil},
		{"mssql top", `SELECT TOP 10 [id] FROM [RepData];`, nil},
		{"update", `UPDATE "ThreshSet" SET "max_value" = 0`, ErrNotReadOnly},
		{"insert", `INSERT INTO "AlertLog" ("message") VALUES ('x')`, ErrNotReadOnly},
		{"delete", `DELETE FROM "RepData"`, ErrNotReadOnly},
		{"empty", ``, ErrNotReadOnly},
		{"stacked", `SELECT 1; DROP TABLE "RepData"`, ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Error, tt.wantErr)
				return
			}
			assert.NoError(t, result.Error)
			assert.NotEmpty(t, result.NormalizedSQL)
		})
	}
}

func TestHasSemicolonOutsideStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"SELECT 1", false},
		{"SELECT 1; SELECT 2", true},
		{"SELECT 'a;b'", false},
		{`SELECT "a;b"`, false},
		{"SELECT [a;b]", false},
		{"SELECT 'a;b'; SELECT 1", true},
		{"SELECT 'it''s;here'", false},
		{`SELECT 'test\';more'`, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, hasSemicolonOutsideStrings(tt.input), tt.input)
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	assert.Equal(t, "SELECT 1", stripTrailingSemicolon("SELECT 1"))
	assert.Equal(t, "SELECT 1", stripTrailingSemicolon("SELECT 1 ;"))
	assert.Equal(t, "SELECT 1", stripTrailingSemicolon("SELECT 1;\t\n"))
	assert.Equal(t, "SELECT 1;", stripTrailingSemicolon("SELECT 1;;"), "only one semicolon is stripped")
}

func TestValidateReadOnly_CommentsAndInto(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"semicolon in line comment", "SELECT 1 -- trailing; note\n", nil},
		{"semicolon in block comment", "SELECT /* a;b */ 1", nil},
		{"statement after comment", "SELECT 1 /* x */; DROP TABLE \"RepData\"", ErrMultipleStatements},
		{"select into", `SELECT * INTO "Backup" FROM "RepData"`, ErrNotReadOnly},
		{"into inside literal", `SELECT * FROM "AlertLog" WHERE "message" = 'moved into bay'`, nil},
		{"into as quoted column", `SELECT "into" FROM "RepData"`, nil},
		{"leading comment hides update", "/* SELECT */ UPDATE \"RepData\" SET \"value\" = 0", ErrNotReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Error, tt.wantErr)
				return
			}
			assert.NoError(t, result.Error)
		})
	}
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"SELECT", "FROM", "WHERE", "AND"},
		keywords(`select "id" from "RepData" where "value" > $1 and "dev_id" = 'DEV001'`))
	assert.Equal(t, []string{"SELECT", "FROM"}, keywords(`SELECT"id"FROM[RepData]`))
}
