package models

// QueryPlan is a parameterized query ready for execution.
// SQL uses $1..$N placeholders; adapters rewrite them for their driver.
type QueryPlan struct {
	SQL       string    `json:"sql"`
	Params    []any     `json:"params"`
	Joins     []string  `json:"joins,omitempty"`
	Dialect   string    `json:"dialect"`
	Target    string    `json:"target"`
	Operation Operation `json:"operation"`
	// Warnings lists parts of the intent the query could not express.
	Warnings []string `json:"warnings,omitempty"`
}

// QueryOptions are the caller-controlled knobs of a single question.
type QueryOptions struct {
	// JSONOutput asks for machine-oriented detail (the resolved intent and
	// bound parameters) in the envelope.
	JSONOutput bool `json:"json_output"`
	// RowLimit overrides the default row cap for list queries. Zero keeps the default.
	RowLimit int `json:"row_limit"`
}

// ResultEnvelope is the outcome of processing one question, success or failure.
type ResultEnvelope struct {
	RequestID string           `json:"request_id"`
	Question  string           `json:"question"`
	Success   bool             `json:"success"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Query     string           `json:"query,omitempty"`
	ElapsedMs int64            `json:"elapsed_ms"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Cached    bool             `json:"cached,omitempty"`

	Intent *Intent `json:"intent,omitempty"`
	Params []any   `json:"params,omitempty"`
}
