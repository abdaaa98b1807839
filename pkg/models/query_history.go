package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryHistoryEntry records one processed question.
// Failed questions are recorded too so ambiguous phrasing can be reviewed later.
type QueryHistoryEntry struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`

	// Resolution
	Target    string       `json:"target,omitempty"`
	Operation string       `json:"operation,omitempty"`
	Source    IntentSource `json:"source,omitempty"`
	SQL       string       `json:"sql,omitempty"`

	// Outcome
	Success   bool   `json:"success"`
	RowCount  int    `json:"row_count"`
	ElapsedMs int64  `json:"elapsed_ms"`
	ErrorKind string `json:"error_kind,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// QueryHistoryFilters contains filters for listing history entries.
type QueryHistoryFilters struct {
	Target        string
	OnlyFailed    bool
	OnlySucceeded bool
	Since         *time.Time
	Limit         int
}

// QueryHistoryStats summarizes outcomes of recorded questions.
type QueryHistoryStats struct {
	Since        *time.Time `json:"since,omitempty"`
	Total        int        `json:"total"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	SuccessRate  float64    `json:"success_rate"`
	AvgElapsedMs float64    `json:"avg_elapsed_ms"`

	// ByTarget is ordered by Total, largest first. Questions that never
	// resolved to a table are counted under an empty Target.
	ByTarget    []TargetStats  `json:"by_target"`
	ByErrorKind map[string]int `json:"by_error_kind"`
}

// TargetStats counts questions resolved to one table.
type TargetStats struct {
	Target    string `json:"target"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
}
