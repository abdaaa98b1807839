package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

func TestDefault_LoadsIoTSchema(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"RepData", "RepItem", "DevMap", "ThreshSet", "AlertLog", "LocRef"}, cat.Tables())

	signals, ok := cat.Table("repdata")
	require.True(t, ok, "table lookup should be case-insensitive")
	assert.Equal(t, "timestamp", signals.TemporalColumn)
	assert.Equal(t, "value", signals.ValueColumn)

	col, ok := signals.Column("VALUE")
	require.True(t, ok)
	assert.True(t, col.IsNumeric())

	require.NotNil(t, signals.Breach)
	assert.Equal(t, models.ColumnRef{Table: "ThreshSet", Column: "max_value"}, signals.Breach.RefColumn())
}

func TestDefault_SharedEnumAnchor(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	devices, _ := cat.Table("DevMap")
	deviceType, ok := devices.Column("device_type")
	require.True(t, ok)
	assert.Equal(t, TypeEnum, deviceType.Type)
	assert.Len(t, deviceType.Values, 10)
	assert.Contains(t, deviceType.Values[0].Phrases(), "temperature")
}

func TestCatalog_JoinBetween(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	j, ok := cat.JoinBetween("RepData", "LocRef")
	require.True(t, ok)
	assert.Equal(t, models.ColumnRef{Table: "RepData", Column: "location_id"}, j.FromColumn())
	assert.Equal(t, models.ColumnRef{Table: "LocRef", Column: "location_id"}, j.ToColumn())

	_, ok = cat.JoinBetween("AlertLog", "LocRef")
	assert.False(t, ok, "alerts reach locations only through devices")

	_, ok = cat.JoinBetween("DevMap", "RepData")
	assert.False(t, ok, "joins are directional")
}

func TestCatalog_RelatedEnumColumns(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	related := cat.RelatedEnumColumns("RepData")
	assert.Contains(t, related, models.ColumnRef{Table: "LocRef", Column: "location_name"})
	assert.Contains(t, related, models.ColumnRef{Table: "DevMap", Column: "device_id"})

	for _, ref := range cat.RelatedEnumColumns("LocRef") {
		assert.NotEqual(t, "LocRef", ref.Table)
	}
}

func TestCatalog_ReferencingColumn(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	col, ok := cat.ReferencingColumn("DevMap", models.ColumnRef{Table: "LocRef", Column: "location_id"})
	require.True(t, ok)
	assert.Equal(t, "location", col)

	_, ok = cat.ReferencingColumn("DevMap", models.ColumnRef{Table: "LocRef", Column: "location_name"})
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "invalid identifier",
			yaml: `
tables:
  - name: "Rep Data"
    id_column: id
    columns: [{name: id, type: number}]
`,
		},
		{
			name: "unknown column type",
			yaml: `
tables:
  - name: T
    id_column: id
    columns: [{name: id, type: blob}]
`,
		},
		{
			name: "enum without values",
			yaml: `
tables:
  - name: T
    id_column: id
    columns: [{name: id, type: number}, {name: status, type: enum}]
`,
		},
		{
			name: "value column not numeric",
			yaml: `
tables:
  - name: T
    id_column: id
    value_column: label
    columns: [{name: id, type: number}, {name: label, type: text}]
`,
		},
		{
			name: "join to unknown table",
			yaml: `
tables:
  - name: T
    id_column: id
    columns: [{name: id, type: number}]
joins:
  - from: T.id
    to: U.id
`,
		},
		{
			name: "enrichment without join",
			yaml: `
tables:
  - name: T
    id_column: id
    columns: [{name: id, type: number}]
    enrich: [U.name]
  - name: U
    id_column: id
    columns: [{name: id, type: number}, {name: name, type: text}]
`,
		},
		{
			name: "malformed yaml",
			yaml: "tables: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("empty path uses embedded catalog", func(t *testing.T) {
		cat, err := LoadFile("")
		require.NoError(t, err)
		assert.Len(t, cat.Tables(), 6)
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		content := `
tables:
  - name: Meter
    id_column: id
    columns:
      - {name: id, type: number}
      - {name: kwh, type: number}
terms:
  - term: meters
    kind: table
    canonical: Meter
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cat, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Meter"}, cat.Tables())
		assert.Len(t, cat.Terms(), 1)
	})
}

func TestNormalizePhrase(t *testing.T) {
	assert.Equal(t, "air quality sensor", NormalizePhrase("Air_Quality_Sensor"))
	assert.Equal(t, "factory floor a", NormalizePhrase("  Factory   Floor A "))
}

func TestDescribe_ListsEnumValues(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	desc := cat.Describe()
	assert.Contains(t, desc, "AlertLog (alert history):")
	assert.Contains(t, desc, "severity enum [low, medium, high, critical]")
}
