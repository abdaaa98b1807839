package intent

import (
	"regexp"

	"github.com/ekaya-inc/sensorql/pkg/models"
)

// operationKeywords is evaluated in order; the first operation with an
// unclaimed keyword in the question wins.
var operationKeywords = []struct {
	op      models.Operation
	phrases []string
}{
	{models.OpCount, []string{"count", "how many", "number of", "total number"}},
	{models.OpAverage, []string{"average", "avg", "mean", "typical"}},
	{models.OpMax, []string{"maximum", "max", "highest", "peak", "largest"}},
	{models.OpMin, []string{"minimum", "min", "lowest", "smallest"}},
}

const numberPattern = `(-?\d+(?:\.\d+)?)\b`

type comparator struct {
	pattern *regexp.Regexp
	op      models.Operator
	// symbolic comparators carry the operator in the first group
	symbolic bool
	// between produces two predicates from two groups
	between bool
}

var comparators = []comparator{
	{pattern: regexp.MustCompile(`\bbetween\s+` + numberPattern + `\s+and\s+` + numberPattern), between: true},
	{pattern: regexp.MustCompile(`\b(?:greater than or equal to|at least|no less than|not less than|minimum of)\s+` + numberPattern), op: models.OpGte},
	{pattern: regexp.MustCompile(`\b(?:less than or equal to|at most|no more than|not more than|up to|maximum of)\s+` + numberPattern), op: models.OpLte},
	{pattern: regexp.MustCompile(`\b(?:above|over|greater than|more than|higher than|larger than|exceeding|exceeds)\s+` + numberPattern), op: models.OpGt},
	{pattern: regexp.MustCompile(`\b(?:below|under|less than|lower than|smaller than|beneath)\s+` + numberPattern), op: models.OpLt},
	{pattern: regexp.MustCompile(`\b(?:equal to|equals|exactly)\s+` + numberPattern), op: models.OpEq},
	{pattern: regexp.MustCompile(`(>=|<=|>|<|=)\s*` + numberPattern), symbolic: true},
	{pattern: regexp.MustCompile(`(?:^|\s)` + numberPattern + `\s+or\s+(?:more|above|higher|greater)\b`), op: models.OpGte},
	{pattern: regexp.MustCompile(`(?:^|\s)` + numberPattern + `\s+or\s+(?:less|below|lower|fewer)\b`), op: models.OpLte},
}

// limitPattern reads "top 5", "latest 10" and friends. Number words are
// shared with the temporal parser's vocabulary.
var limitPattern = regexp.MustCompile(`\b(top|first|latest|last|newest|most recent|recent)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|twenty|fifty|hundred)\b`)

var limitNumberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "twenty": 20,
	"fifty": 50, "hundred": 100,
}

var (
	newestWords = []string{"latest", "most recent", "newest", "recent"}
	oldestWords = []string{"oldest", "earliest"}
)

// namePattern reads "named alpha" / "called warehouse" into a LIKE filter on
// the table's name column.
var namePattern = regexp.MustCompile(`\b(?:named|called|name like|name contains|containing)\s+([a-z0-9][a-z0-9 ]*?)(?:\s+(?:in|at|from|with|that|which|last|this|today|yesterday)\b|$)`)
