package sql

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewritePlaceholders(t *testing.T) {
	named := func(n int) string { return "@p" + strconv.Itoa(n) }

	tests := []struct {
		name, in, want string
	}{
		{"none", `SELECT 1`, `SELECT 1`},
		{"several", `SELECT * FROM "RepData" WHERE "value" > $1 AND "timestamp" < $12`, `SELECT * FROM "RepData" WHERE "value" > @p1 AND "timestamp" < @p12`},
		{"inside literal", `SELECT '$1' WHERE "x" = $1`, `SELECT '$1' WHERE "x" = @p1`},
		{"inside identifier", `SELECT "a$1" FROM [b$2] WHERE c = $2`, `SELECT "a$1" FROM [b$2] WHERE c = @p2`},
		{"inside comment", "SELECT $1 -- $2\n", "SELECT @p1 -- $2\n"},
		{"bare dollar", `SELECT '€' || $ || $3`, `SELECT '€' || $ || @p3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewritePlaceholders(tt.in, named))
		})
	}
}
