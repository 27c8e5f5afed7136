package patternbank

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PatternQuery filters and bounds a pattern query.
type PatternQuery struct {
	// ComponentType restricts results to one component type when set.
	ComponentType string

	// MinConfidence drops patterns below this score.
	MinConfidence float64

	// Context holds arbitrary context key/value pairs that must match
	// exactly (keys: framework, theme, brand_pack_id, file_type, location).
	Context map[string]string

	// Limit bounds the result count. Zero or negative uses DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit is the result bound applied when a query specifies none.
const DefaultQueryLimit = 50

// DeleteCriteria selects patterns for retention cleanup.
type DeleteCriteria struct {
	// MaxConfidence matches patterns strictly below this score.
	MaxConfidence float64

	// LastSeenBefore matches patterns not observed since this instant.
	LastSeenBefore time.Time
}

// Store is the persistence contract the engine reads and writes through.
//
// The engine borrows the store and never owns its lifecycle. Implementations
// must serialize upserts for the same pattern ID (atomic increment-and-set)
// to avoid lost updates under concurrent interactions; the batch readers
// (correlation, preference, calibration) tolerate slightly stale snapshots.
//
// Store operation failures should be surfaced wrapped in
// ErrStoreUnavailable so callers can apply retry policy.
type Store interface {
	// UpsertPattern inserts the pattern, or, if one with the same ID
	// already exists for the project, increments its frequency, updates
	// LastSeen, and adjusts confidence by the incremental feedback rule
	// for the implicit action. Returns the stored state.
	UpsertPattern(ctx context.Context, projectID string, p *Pattern, action FeedbackAction) (*Pattern, error)

	// GetPattern retrieves one pattern, or ErrPatternNotFound.
	GetPattern(ctx context.Context, projectID, id string) (*Pattern, error)

	// QueryPatterns returns patterns matching the query, sorted by
	// confidence descending then frequency descending.
	QueryPatterns(ctx context.Context, projectID string, q PatternQuery) ([]Pattern, error)

	// ListPatterns returns every pattern for a project, unsorted. Used by
	// the batch maintenance jobs.
	ListPatterns(ctx context.Context, projectID string) ([]Pattern, error)

	// UpdateConfidence sets a pattern's confidence without touching
	// frequency or LastSeen. Used by the decay sweep and feedback updates.
	UpdateConfidence(ctx context.Context, projectID, id string, confidence float64) error

	// DeletePatterns removes patterns matching the criteria and reports
	// how many were removed.
	DeletePatterns(ctx context.Context, projectID string, c DeleteCriteria) (int, error)

	// AppendFeedback persists an immutable feedback row.
	AppendFeedback(ctx context.Context, fb *Feedback) error

	// ListFeedback returns feedback for one pattern since the given
	// instant, oldest first.
	ListFeedback(ctx context.Context, projectID, patternID string, since time.Time) ([]Feedback, error)

	// ListProjectFeedback returns all feedback for a project since the
	// given instant, oldest first.
	ListProjectFeedback(ctx context.Context, projectID string, since time.Time) ([]Feedback, error)
}

// MemoryStore is an in-memory Store implementation for tests and
// single-process use.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]map[string]*Pattern // projectID -> patternID -> pattern
	feedback map[string][]Feedback          // projectID -> rows, append order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patterns: make(map[string]map[string]*Pattern),
		feedback: make(map[string][]Feedback),
	}
}

// UpsertPattern inserts or merges a pattern under the store lock, which
// serializes concurrent upserts for the same ID.
func (s *MemoryStore) UpsertPattern(ctx context.Context, projectID string, p *Pattern, action FeedbackAction) (*Pattern, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.patterns[projectID] == nil {
		s.patterns[projectID] = make(map[string]*Pattern)
	}

	existing, ok := s.patterns[projectID][p.ID]
	if !ok {
		stored := *p
		s.patterns[projectID][p.ID] = &stored
		out := stored
		return &out, nil
	}

	existing.Metadata.Frequency++
	if p.Metadata.LastSeen.After(existing.Metadata.LastSeen) {
		existing.Metadata.LastSeen = p.Metadata.LastSeen
	}
	existing.Metadata.Confidence = ApplyFeedbackAdjustment(existing.Metadata.Confidence, action)

	out := *existing
	return &out, nil
}

// GetPattern retrieves a pattern by ID.
func (s *MemoryStore) GetPattern(ctx context.Context, projectID, id string) (*Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[projectID][id]
	if !ok {
		return nil, ErrPatternNotFound
	}
	out := *p
	return &out, nil
}

// QueryPatterns filters, sorts, and bounds the project's patterns.
func (s *MemoryStore) QueryPatterns(ctx context.Context, projectID string, q PatternQuery) ([]Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Pattern
	for _, p := range s.patterns[projectID] {
		if !MatchesQuery(p, q) {
			continue
		}
		results = append(results, *p)
	}

	SortPatterns(results)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListPatterns returns all patterns for a project.
func (s *MemoryStore) ListPatterns(ctx context.Context, projectID string) ([]Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Pattern, 0, len(s.patterns[projectID]))
	for _, p := range s.patterns[projectID] {
		results = append(results, *p)
	}
	return results, nil
}

// UpdateConfidence sets a pattern's confidence in place.
func (s *MemoryStore) UpdateConfidence(ctx context.Context, projectID, id string, confidence float64) error {
	if confidence < 0.0 || confidence > 1.0 {
		return ErrInvalidConfidence
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[projectID][id]
	if !ok {
		return ErrPatternNotFound
	}
	p.Metadata.Confidence = confidence
	return nil
}

// DeletePatterns removes patterns matching the retention criteria.
func (s *MemoryStore) DeletePatterns(ctx context.Context, projectID string, c DeleteCriteria) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.patterns[projectID] {
		if MatchesDeleteCriteria(p, c) {
			delete(s.patterns[projectID], id)
			removed++
		}
	}
	return removed, nil
}

// AppendFeedback stores an immutable feedback row.
func (s *MemoryStore) AppendFeedback(ctx context.Context, fb *Feedback) error {
	if err := fb.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback[fb.ProjectID] = append(s.feedback[fb.ProjectID], *fb)
	return nil
}

// ListFeedback returns feedback rows for one pattern since the cutoff.
func (s *MemoryStore) ListFeedback(ctx context.Context, projectID, patternID string, since time.Time) ([]Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Feedback
	for _, fb := range s.feedback[projectID] {
		if fb.PatternID != patternID {
			continue
		}
		if !since.IsZero() && fb.Timestamp.Before(since) {
			continue
		}
		rows = append(rows, fb)
	}
	sortFeedback(rows)
	return rows, nil
}

// ListProjectFeedback returns all feedback for a project since the cutoff.
func (s *MemoryStore) ListProjectFeedback(ctx context.Context, projectID string, since time.Time) ([]Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Feedback
	for _, fb := range s.feedback[projectID] {
		if !since.IsZero() && fb.Timestamp.Before(since) {
			continue
		}
		rows = append(rows, fb)
	}
	sortFeedback(rows)
	return rows, nil
}

// MatchesQuery reports whether a pattern satisfies a query's filters.
// Exported so store adapters outside this package can reuse the exact
// filter semantics.
func MatchesQuery(p *Pattern, q PatternQuery) bool {
	if q.ComponentType != "" && p.ComponentType != q.ComponentType {
		return false
	}
	if p.Metadata.Confidence < q.MinConfidence {
		return false
	}
	if len(q.Context) > 0 {
		ctx := p.Context.asMap()
		for k, v := range q.Context {
			if ctx[k] != v {
				return false
			}
		}
	}
	return true
}

// MatchesDeleteCriteria reports whether a pattern falls under retention
// cleanup: confidence below the cutoff AND idle past the retention window.
func MatchesDeleteCriteria(p *Pattern, c DeleteCriteria) bool {
	if p.Metadata.Confidence >= c.MaxConfidence {
		return false
	}
	if c.LastSeenBefore.IsZero() || !p.Metadata.LastSeen.Before(c.LastSeenBefore) {
		return false
	}
	return true
}

// SortPatterns orders patterns by confidence descending, then frequency
// descending, then ID for a stable tiebreak.
func SortPatterns(patterns []Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Metadata.Confidence != b.Metadata.Confidence {
			return a.Metadata.Confidence > b.Metadata.Confidence
		}
		if a.Metadata.Frequency != b.Metadata.Frequency {
			return a.Metadata.Frequency > b.Metadata.Frequency
		}
		return a.ID < b.ID
	})
}

// sortFeedback orders rows oldest first.
func sortFeedback(rows []Feedback) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
}
