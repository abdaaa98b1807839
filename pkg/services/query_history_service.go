package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/models"
	"github.com/ekaya-inc/sensorql/pkg/repositories"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	// similarityWindow is how many recent successful entries SimilarSuccessful ranks.
	similarityWindow = maxHistoryLimit
)

// QueryHistoryService records processed questions and lists them for review.
type QueryHistoryService interface {
	Record(ctx context.Context, entry *models.QueryHistoryEntry) error
	List(ctx context.Context, filters models.QueryHistoryFilters) ([]*models.QueryHistoryEntry, int, error)
	// Get returns apperrors.ErrNotFound for an unknown id.
	Get(ctx context.Context, id uuid.UUID) (*models.QueryHistoryEntry, error)
	// Prune deletes entries older than retention and returns how many were removed.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
	// SimilarSuccessful returns up to n answered questions sharing words with
	// question, most similar first. Repeats of the same question are collapsed.
	SimilarSuccessful(ctx context.Context, question string, n int) ([]*models.QueryHistoryEntry, error)
	// Stats summarizes outcomes since the given time, or over all history when since is nil.
	Stats(ctx context.Context, since *time.Time) (*models.QueryHistoryStats, error)
}

type queryHistoryService struct {
	repo   repositories.QueryHistoryRepository
	now    func() time.Time
	logger *zap.Logger
}

var _ QueryHistoryService = (*queryHistoryService)(nil)

// NewQueryHistoryService creates a history service over repo.
func NewQueryHistoryService(repo repositories.QueryHistoryRepository, logger *zap.Logger) QueryHistoryService {
	return &queryHistoryService{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("history"),
	}
}

func (s *queryHistoryService) Record(ctx context.Context, entry *models.QueryHistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

func (s *queryHistoryService) List(ctx context.Context, filters models.QueryHistoryFilters) ([]*models.QueryHistoryEntry, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultHistoryLimit
	}
	filters.Limit = min(filters.Limit, maxHistoryLimit)
	return s.repo.List(ctx, filters)
}

func (s *queryHistoryService) Get(ctx context.Context, id uuid.UUID) (*models.QueryHistoryEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *queryHistoryService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Pruned query history", zap.Int64("deleted", n), zap.Duration("retention", retention))
	}
	return n, nil
}

func (s *queryHistoryService) SimilarSuccessful(ctx context.Context, question string, n int) ([]*models.QueryHistoryEntry, error) {
	words := questionWords(question)
	if n <= 0 || len(words) == 0 {
		return nil, nil
	}

	entries, _, err := s.repo.List(ctx, models.QueryHistoryFilters{OnlySucceeded: true, Limit: similarityWindow})
	if err != nil {
		return nil, fmt.Errorf("list answered questions: %w", err)
	}

	type scored struct {
		entry *models.QueryHistoryEntry
		score float64
	}
	seen := make(map[string]bool)
	var ranked []scored
	// entries are newest first, so the newest of repeated questions is kept.
	for _, e := range entries {
		key := strings.Join(strings.Fields(strings.ToLower(e.Question)), " ")
		if e.Target == "" || seen[key] {
			continue
		}
		seen[key] = true
		if score := jaccard(words, questionWords(e.Question)); score > 0 {
			ranked = append(ranked, scored{entry: e, score: score})
		}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	out := make([]*models.QueryHistoryEntry, 0, min(n, len(ranked)))
	for _, r := range ranked[:min(n, len(ranked))] {
		out = append(out, r.entry)
	}
	return out, nil
}

func (s *queryHistoryService) Stats(ctx context.Context, since *time.Time) (*models.QueryHistoryStats, error) {
	stats, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}
	return stats, nil
}

// questionWords returns the distinct lower-cased words of q, ignoring
// one-letter words and filler that every question shares.
func questionWords(q string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(w) < 2 || questionFiller[w] {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

var questionFiller = map[string]bool{
	"an": true, "the": true, "of": true, "for": true, "in": true, "on": true,
	"me": true, "is": true, "are": true, "was": true, "were": true, "what": true,
	"show": true, "list": true, "get": true, "give": true, "all": true, "from": true,
	"with": true, "to": true, "and": true, "by": true,
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
