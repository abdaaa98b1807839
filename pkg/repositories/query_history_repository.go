package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// historyTimeLayout is fixed-width so TEXT timestamps sort chronologically.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// QueryHistoryRepository provides data access for processed questions.
type QueryHistoryRepository interface {
	Create(ctx context.Context, entry *models.QueryHistoryEntry) error
	// List returns matching entries newest first, plus the total number of matches.
	List(ctx context.Context, filters models.QueryHistoryFilters) ([]*models.QueryHistoryEntry, int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.QueryHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Stats aggregates entries created at or after since, or all entries when since is nil.
	Stats(ctx context.Context, since *time.Time) (*models.QueryHistoryStats, error)
}

type queryHistoryRepository struct {
	db *sql.DB
}

// NewQueryHistoryRepository stores history in the SQLite database db.
// The query_history table must already exist (see database.RunHistoryMigrations).
func NewQueryHistoryRepository(db *sql.DB) QueryHistoryRepository {
	return &queryHistoryRepository{db: db}
}

var _ QueryHistoryRepository = (*queryHistoryRepository)(nil)

const historyColumns = `id, question, target, operation, source, sql_text,
	success, row_count, elapsed_ms, error_kind, created_at`

func (r *queryHistoryRepository) Create(ctx context.Context, entry *models.QueryHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO query_history (` + historyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.Question,
		nullString(entry.Target),
		nullString(entry.Operation),
		nullString(string(entry.Source)),
		nullString(entry.SQL),
		entry.Success,
		entry.RowCount,
		entry.ElapsedMs,
		nullString(entry.ErrorKind),
		entry.CreatedAt.UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create query history entry: %w", err)
	}
	return nil
}

func (r *queryHistoryRepository) List(ctx context.Context, filters models.QueryHistoryFilters) ([]*models.QueryHistoryEntry, int, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	conditions := []string{"1 = 1"}
	var args []any

	if filters.Target != "" {
		conditions = append(conditions, "target = ? COLLATE NOCASE")
		args = append(args, filters.Target)
	}
	if filters.OnlyFailed {
		conditions = append(conditions, "success = 0")
	}
	if filters.OnlySucceeded {
		conditions = append(conditions, "success = 1")
	}
	if filters.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filters.Since.UTC().Format(historyTimeLayout))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM query_history WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count query history entries: %w", err)
	}

	dataQuery := `
		SELECT ` + historyColumns + `
		FROM query_history
		WHERE ` + where + `
		ORDER BY created_at DESC, id
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, dataQuery, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list query history entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueryHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating query history entries: %w", err)
	}

	return entries, total, nil
}

func (r *queryHistoryRepository) Get(ctx context.Context, id uuid.UUID) (*models.QueryHistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM query_history WHERE id = ?`, id.String())
	entry, err := scanHistoryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return entry, err
}

func (r *queryHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE created_at < ?`, cutoff.UTC().Format(historyTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old query history entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *queryHistoryRepository) Stats(ctx context.Context, since *time.Time) (*models.QueryHistoryStats, error) {
	where := "1 = 1"
	var args []any
	if since != nil {
		where = "created_at >= ?"
		args = append(args, since.UTC().Format(historyTimeLayout))
	}

	stats := &models.QueryHistoryStats{
		Since:       since,
		ByTarget:    []models.TargetStats{},
		ByErrorKind: map[string]int{},
	}

	totalsQuery := `
		SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(elapsed_ms), 0)
		FROM query_history
		WHERE ` + where
	if err := r.db.QueryRowContext(ctx, totalsQuery, args...).Scan(&stats.Total, &stats.Succeeded, &stats.AvgElapsedMs); err != nil {
		return nil, fmt.Errorf("failed to aggregate query history: %w", err)
	}
	stats.Failed = stats.Total - stats.Succeeded
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}

	targetQuery := `
		SELECT COALESCE(target, ''), COUNT(*), COALESCE(SUM(success), 0)
		FROM query_history
		WHERE ` + where + `
		GROUP BY COALESCE(target, '')
		ORDER BY COUNT(*) DESC, 1`
	rows, err := r.db.QueryContext(ctx, targetQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query history by target: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ts models.TargetStats
		if err := rows.Scan(&ts.Target, &ts.Total, &ts.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan target stats: %w", err)
		}
		stats.ByTarget = append(stats.ByTarget, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target stats: %w", err)
	}

	kindQuery := `
		SELECT error_kind, COUNT(*)
		FROM query_history
		WHERE ` + where + ` AND success = 0 AND error_kind IS NOT NULL
		GROUP BY error_kind`
	kindRows, err := r.db.QueryContext(ctx, kindQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate query history by error kind: %w", err)
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var (
			kind string
			n    int
		)
		if err := kindRows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan error kind stats: %w", err)
		}
		stats.ByErrorKind[kind] = n
	}
	if err := kindRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error kind stats: %w", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row rowScanner) (*models.QueryHistoryEntry, error) {
	var (
		entry                                   models.QueryHistoryEntry
		id, createdAt                           string
		target, operation, source, sqlText, kind sql.NullString
	)
	err := row.Scan(&id, &entry.Question, &target, &operation, &source, &sqlText,
		&entry.Success, &entry.RowCount, &entry.ElapsedMs, &kind, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan query history entry: %w", err)
	}

	if entry.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid query history id %q: %w", id, err)
	}
	if entry.CreatedAt, err = time.Parse(historyTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid query history timestamp %q: %w", createdAt, err)
	}
	entry.Target = target.String
	entry.Operation = operation.String
	entry.Source = models.IntentSource(source.String)
	entry.SQL = sqlText.String
	entry.ErrorKind = kind.String
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
