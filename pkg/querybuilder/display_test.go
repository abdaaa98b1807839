package querybuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

func TestDisplay(t *testing.T) {
	ts := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		plan *models.QueryPlan
		want string
	}{
		{
			name: "sqlite",
			plan: &models.QueryPlan{
				Dialect: "sqlite",
				SQL:     `SELECT * FROM "AlertLog" t WHERE t."severity" = $1 AND t."acknowledged" = $2 AND t."timestamp" >= $3 LIMIT $4`,
				Params:  []any{"high", false, ts, 100},
			},
			want: `SELECT * FROM "AlertLog" t WHERE t."severity" = 'high' AND t."acknowledged" = 0 AND t."timestamp" >= '2024-03-13 00:00:00' LIMIT 100`,
		},
		{
			name: "postgres",
			plan: &models.QueryPlan{
				Dialect: "postgres",
				SQL:     `WHERE a = $1 AND b = $2 AND c > $3`,
				Params:  []any{true, ts, 30.5},
			},
			want: `WHERE a = TRUE AND b = '2024-03-13T00:00:00Z' AND c > 30.5`,
		},
		{
			name: "quotes escaped",
			plan: &models.QueryPlan{
				Dialect: "mssql",
				SQL:     `WHERE [name] = $1`,
				Params:  []any{"O'Brien"},
			},
			want: `WHERE [name] = 'O''Brien'`,
		},
		{
			name: "two digit placeholders",
			plan: &models.QueryPlan{
				Dialect: "sqlite",
				SQL:     `$1 $10 $11`,
				Params:  []any{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
			},
			want: `1 10 11`,
		},
		{
			name: "missing param left alone",
			plan: &models.QueryPlan{Dialect: "sqlite", SQL: `$1 $2`, Params: []any{nil}},
			want: `NULL $2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Display(tt.plan))
		})
	}

	assert.Empty(t, Display(nil))
}
