package sql

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a bound value that libinjection flags as SQL.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string // libinjection token fingerprint, e.g. "s&sos"
	ParamName   string // placeholder the value is bound to, e.g. "$2"
	ParamValue  any
}

// InjectionError reports every flagged parameter of one statement.
type InjectionError struct {
	Hits []*InjectionCheckResult
}

func (e *InjectionError) Error() string {
	parts := make([]string, len(e.Hits))
	for i, h := range e.Hits {
		parts[i] = fmt.Sprintf("%s (fingerprint %s)", h.ParamName, h.Fingerprint)
	}
	return "bound value looks like SQL: " + strings.Join(parts, ", ")
}

// CheckParameterForInjection runs libinjection over a string value. Other
// types are never flagged.
//
//	CheckParameterForInjection("$1", "high")         // nil
//	CheckParameterForInjection("$1", "x' OR '1'='1") // IsSQLi == true
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}
	return nil
}

// CheckPositionalParameters checks the value bound to each $N placeholder.
// Returns nil when all parameters are clean.
func CheckPositionalParameters(params []any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, value := range params {
		if result := CheckParameterForInjection(fmt.Sprintf("$%d", i+1), value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// CheckQuery is the full pre-execution check: the statement must be a single
// read-only SELECT and no bound value may look like SQL. It returns the
// normalized statement.
func CheckQuery(sqlQuery string, params []any) (string, error) {
	res := ValidateReadOnly(sqlQuery)
	if res.Error != nil {
		return "", res.Error
	}
	if hits := CheckPositionalParameters(params); len(hits) > 0 {
		return "", &InjectionError{Hits: hits}
	}
	return res.NormalizedSQL, nil
}
