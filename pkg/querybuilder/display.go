package querybuilder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// SQLiteTimeLayout is how timestamps are stored and compared in SQLite.
const SQLiteTimeLayout = "2006-01-02 15:04:05"

// Display renders plan with its parameters inlined as literals. The result is
// for people to read; it is never executed.
func Display(plan *models.QueryPlan) string {
	if plan == nil {
		return ""
	}
	d := Dialect(plan.Dialect)
	return placeholderPattern.ReplaceAllStringFunc(plan.SQL, func(ph string) string {
		n, err := strconv.Atoi(ph[1:])
		if err != nil || n < 1 || n > len(plan.Params) {
			return ph
		}
		return d.literal(plan.Params[n-1])
	})
}

func (d Dialect) literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if d == DialectPostgres {
			return strings.ToUpper(strconv.FormatBool(val))
		}
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		if d == DialectSQLite {
			return "'" + val.UTC().Format(SQLiteTimeLayout) + "'"
		}
		return "'" + val.Format(time.RFC3339) + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}
