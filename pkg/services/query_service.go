package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/intent"
	"github.com/ekaya-inc/sensorql/pkg/logging"
	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/querybuilder"
	sqlguard "github.com/ekaya-inc/sensorql/pkg/sql"
)

// DefaultQueryTimeout bounds a single backend query when none is configured.
const DefaultQueryTimeout = 30 * time.Second

// QueryService answers natural-language questions.
type QueryService interface {
	// ProcessQuestion never returns an error: every failure is reported in the
	// envelope with Success=false and an ErrorKind.
	ProcessQuestion(ctx context.Context, question string, opts models.QueryOptions) *models.ResultEnvelope
}

type queryService struct {
	extractor *intent.Extractor
	builder   *querybuilder.Builder
	executor  datasource.QueryExecutor
	fallback  FallbackInterpreter
	history   QueryHistoryService
	cache     ResultCache
	flights   singleflight.Group
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

var _ QueryService = (*queryService)(nil)

// QueryServiceOption configures optional collaborators.
type QueryServiceOption func(*queryService)

// WithFallback consults f when rule-based extraction finds no target.
func WithFallback(f FallbackInterpreter) QueryServiceOption {
	return func(s *queryService) { s.fallback = f }
}

// WithHistory records every processed question.
func WithHistory(h QueryHistoryService) QueryServiceOption {
	return func(s *queryService) { s.history = h }
}

// WithResultCache serves repeated plans from c.
func WithResultCache(c ResultCache) QueryServiceOption {
	return func(s *queryService) { s.cache = c }
}

// WithQueryTimeout bounds each backend query.
func WithQueryTimeout(d time.Duration) QueryServiceOption {
	return func(s *queryService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReferenceClock sets the clock relative time phrases resolve against.
func WithReferenceClock(now func() time.Time) QueryServiceOption {
	return func(s *queryService) { s.now = now }
}

// NewQueryService wires the question pipeline. The builder's dialect must
// match the executor's backend.
func NewQueryService(extractor *intent.Extractor, builder *querybuilder.Builder, executor datasource.QueryExecutor, logger *zap.Logger, opts ...QueryServiceOption) QueryService {
	s := &queryService{
		extractor: extractor,
		builder:   builder,
		executor:  executor,
		timeout:   DefaultQueryTimeout,
		now:       time.Now,
		logger:    logger.Named("query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// answer carries whatever the pipeline resolved before it finished or failed.
type answer struct {
	intent *models.Intent
	plan   *models.QueryPlan
	rs     *ResultSet
	cached bool
}

func (s *queryService) ProcessQuestion(ctx context.Context, question string, opts models.QueryOptions) *models.ResultEnvelope {
	started := time.Now()
	requestID := uuid.NewString()

	ans, err := s.process(ctx, question, opts)

	env := &models.ResultEnvelope{
		RequestID: requestID,
		Question:  question,
		Columns:   []string{},
		Rows:      []map[string]any{},
	}
	if ans.intent != nil {
		env.Warnings = appendUnique(env.Warnings, ans.intent.Warnings...)
		if opts.JSONOutput {
			in := ans.intent.Clone()
			env.Intent = &in
		}
	}
	if ans.plan != nil {
		env.Query = querybuilder.Display(ans.plan)
		env.Warnings = appendUnique(env.Warnings, ans.plan.Warnings...)
		if opts.JSONOutput {
			env.Params = append([]any{}, ans.plan.Params...)
		}
	}

	if err != nil {
		env.Error = logging.SanitizeError(err)
		env.ErrorKind = string(apperrors.KindOf(err))
	} else {
		env.Success = true
		env.Columns = ans.rs.Columns
		env.Rows = ans.rs.Rows
		env.RowCount = ans.rs.RowCount
		env.Cached = ans.cached
		if ans.rs.Truncated {
			env.Warnings = appendUnique(env.Warnings, fmt.Sprintf("result truncated to %d rows", datasource.MaxQueryLimit))
		}
	}
	env.ElapsedMs = time.Since(started).Milliseconds()

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("http_request_id", logging.RequestID(ctx)),
		zap.Bool("success", env.Success),
		zap.Int("row_count", env.RowCount),
		zap.Int64("elapsed_ms", env.ElapsedMs),
		zap.Bool("cached", env.Cached),
	}
	if err != nil {
		s.logger.Info("Question not answered", append(fields,
			zap.String("error_kind", env.ErrorKind),
			zap.String("error", env.Error))...)
	} else {
		s.logger.Debug("Question answered", fields...)
	}

	s.record(ctx, env, ans)
	return env
}

func (s *queryService) process(ctx context.Context, question string, opts models.QueryOptions) (answer, error) {
	var ans answer

	in, err := s.interpret(ctx, question)
	if err != nil {
		return ans, err
	}
	in = s.applyRowLimit(in, opts.RowLimit)
	ans.intent = &in

	plan, err := s.builder.Build(in)
	if err != nil {
		return ans, err
	}
	ans.plan = plan

	if err := guard(plan); err != nil {
		s.logger.Warn("Refusing generated query",
			zap.String("sql", logging.SanitizeQuery(plan.SQL)),
			zap.Error(err))
		return ans, err
	}

	ans.rs, ans.cached, err = s.fetch(ctx, plan)
	return ans, err
}

// interpret runs the rule-based reader and, when it finds no target, the
// fallback interpreter if one is configured.
func (s *queryService) interpret(ctx context.Context, question string) (models.Intent, error) {
	ref := s.now()
	in, err := s.extractor.ExtractAt(question, ref)
	if err == nil || !errors.Is(err, apperrors.ErrAmbiguousIntent) || s.fallback == nil {
		return in, err
	}

	fb, fbErr := s.fallback.Interpret(ctx, question, ref)
	if fbErr != nil {
		s.logger.Debug("Fallback could not interpret question", zap.Error(fbErr))
		return models.Intent{}, err
	}
	return fb, nil
}

// applyRowLimit lets the caller replace the default cap. An explicit "top N"
// in the question is kept unless the caller asks for fewer rows.
func (s *queryService) applyRowLimit(in models.Intent, rowLimit int) models.Intent {
	if rowLimit <= 0 || in.Operation.IsAggregate() {
		return in
	}
	rowLimit = min(rowLimit, s.extractor.MaxLimit())
	if in.Limit == 0 || in.Limit == s.extractor.DefaultLimit() || rowLimit < in.Limit {
		in.Limit = rowLimit
	}
	return in
}

// guard is the last check before SQL reaches a backend. The builder only emits
// single SELECTs with bound values, so a failure here means a builder bug or a
// hostile value and is reported as an unusable interpretation.
func guard(plan *models.QueryPlan) error {
	if _, err := sqlguard.CheckQuery(plan.SQL, plan.Params); err != nil {
		return fmt.Errorf("%w: generated query rejected: %w", apperrors.ErrAmbiguousIntent, err)
	}
	return nil
}

// fetch answers plan from the cache when possible. Concurrent identical plans
// share a single backend query. The shared query runs detached from any one
// caller, so a caller that gives up only ends its own wait.
func (s *queryService) fetch(ctx context.Context, plan *models.QueryPlan) (*ResultSet, bool, error) {
	if s.cache == nil {
		rs, err := s.execute(ctx, plan)
		return rs, false, err
	}

	key := CacheKey(plan)
	if rs, ok := s.cache.Get(ctx, key); ok {
		return rs, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		rs, err := s.execute(detached, plan)
		if err != nil {
			return nil, err
		}
		s.cache.Set(detached, key, rs)
		return rs, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, contextError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*ResultSet), false, nil
	}
}

// contextError maps a caller's abandoned wait to an error kind.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no result from the backend within the time limit", apperrors.ErrTimeout)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrBackend, err)
}

func (s *queryService) execute(ctx context.Context, plan *models.QueryPlan) (*ResultSet, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.executor.Query(qctx, plan.SQL, plan.Params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return nil, contextError(context.DeadlineExceeded)
		}
		if errors.Is(err, apperrors.ErrBackend) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBackend, err)
	}

	return &ResultSet{
		Columns:   result.ColumnNames(),
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
	}, nil
}

// record stores env in the history. Failures are logged and never change the answer.
func (s *queryService) record(ctx context.Context, env *models.ResultEnvelope, ans answer) {
	if s.history == nil {
		return
	}
	entry := &models.QueryHistoryEntry{
		Question:  env.Question,
		Success:   env.Success,
		RowCount:  env.RowCount,
		ElapsedMs: env.ElapsedMs,
		ErrorKind: env.ErrorKind,
		SQL:       env.Query,
	}
	if id, err := uuid.Parse(env.RequestID); err == nil {
		entry.ID = id
	}
	if ans.intent != nil {
		entry.Target = ans.intent.Target
		entry.Operation = string(ans.intent.Operation)
		entry.Source = ans.intent.Source
	}

	// The caller's context may already be cancelled after a timeout.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.history.Record(hctx, entry); err != nil {
		s.logger.Warn("Failed to record question history",
			zap.String("request_id", env.RequestID),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		seen := false
		for _, d := range dst {
			if d == item {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, item)
		}
	}
	return dst
}
