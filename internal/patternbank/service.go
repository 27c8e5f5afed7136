package patternbank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Service ties the engine's pieces together: it consumes interaction and
// feedback events, serves ranked suggestions, and exposes the maintenance
// entry points intended for an external scheduler.
//
// The service is a stateless computation layer over the injected store; it
// holds no long-lived locks and may be called concurrently from request
// handlers and batch jobs.
type Service struct {
	store      Store
	engine     *Engine
	analyzer   *Analyzer
	learner    *PreferenceLearner
	calibrator *Calibrator
	clock      Clock
	logger     *zap.Logger
	metrics    *serviceMetrics
}

// NewService creates the pattern bank service. A nil clock uses the system
// clock; a nil logger is replaced with a no-op logger.
func NewService(store Store, cfg Config, clock Clock, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	engine, err := NewEngine(cfg, clock)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(store, cfg, clock, logger)
	if err != nil {
		return nil, err
	}
	learner, err := NewPreferenceLearner(store, clock, logger)
	if err != nil {
		return nil, err
	}
	calibrator, err := NewCalibrator(store, cfg, clock, logger)
	if err != nil {
		return nil, err
	}
	metrics, err := newServiceMetrics()
	if err != nil {
		return nil, err
	}

	return &Service{
		store:      store,
		engine:     engine,
		analyzer:   analyzer,
		learner:    learner,
		calibrator: calibrator,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Engine exposes the confidence engine for callers that score patterns
// directly.
func (s *Service) Engine() *Engine { return s.engine }

// ObserveInteraction converts an interaction event into a pattern and
// upserts it. Malformed events (missing action or component type) are
// silently discarded and return (nil, nil): upstream noise must not halt
// the pipeline.
func (s *Service) ObserveInteraction(ctx context.Context, projectID string, in Interaction) (*Pattern, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}

	if in.Timestamp.IsZero() {
		in.Timestamp = s.clock.Now()
	}

	p := ExtractPattern(in)
	if p == nil {
		s.metrics.observeInteraction(ctx, true)
		s.logger.Debug("discarding unclassifiable interaction",
			zap.String("project_id", projectID),
			zap.String("action", string(in.Action)),
			zap.String("component_type", in.ComponentType))
		return nil, nil
	}
	s.metrics.observeInteraction(ctx, false)

	stored, err := s.store.UpsertPattern(ctx, projectID, p, in.Action)
	if err != nil {
		return nil, fmt.Errorf("upserting pattern: %w", err)
	}

	s.logger.Debug("interaction observed",
		zap.String("project_id", projectID),
		zap.String("pattern_id", stored.ID),
		zap.Int("frequency", stored.Metadata.Frequency),
		zap.Float64("confidence", stored.Metadata.Confidence))

	return stored, nil
}

// RecordFeedback persists a feedback row and applies the low-latency
// incremental confidence update to its pattern.
//
// Feedback referencing a non-existent pattern is still recorded so the
// audit trail is preserved; it produces no confidence update and is logged
// as a soft warning, never an error.
func (s *Service) RecordFeedback(ctx context.Context, fb *Feedback) error {
	if fb == nil {
		return ErrInvalidAction
	}
	if fb.ID == "" {
		created, err := NewFeedback(fb.ProjectID, fb.PatternID, fb.Action, fb.Timestamp)
		if err != nil {
			return err
		}
		fb.ID = created.ID
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = s.clock.Now()
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	if err := s.store.AppendFeedback(ctx, fb); err != nil {
		return fmt.Errorf("appending feedback: %w", err)
	}
	s.metrics.observeFeedback(ctx, fb.Action)

	p, err := s.store.GetPattern(ctx, fb.ProjectID, fb.PatternID)
	if errors.Is(err, ErrPatternNotFound) {
		s.logger.Warn("feedback references unknown pattern, recorded without update",
			zap.String("project_id", fb.ProjectID),
			zap.String("pattern_id", fb.PatternID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading pattern for feedback: %w", err)
	}

	updated := ApplyFeedbackAdjustment(p.Metadata.Confidence, fb.Action)
	if updated != p.Metadata.Confidence {
		if err := s.store.UpdateConfidence(ctx, fb.ProjectID, p.ID, updated); err != nil {
			return fmt.Errorf("updating confidence: %w", err)
		}
	}

	s.logger.Info("feedback recorded",
		zap.String("project_id", fb.ProjectID),
		zap.String("pattern_id", fb.PatternID),
		zap.String("action", string(fb.Action)),
		zap.Float64("confidence", updated))

	return nil
}

// maxRelated is how many correlated neighbors a suggestion carries.
const maxRelated = 3

// Suggestions returns ranked, explained, action-tagged suggestions for a
// component in the caller's context.
//
// Patterns matching the component type above the advisory threshold are
// freshly scored, decorated with their strongest correlated neighbors,
// preference-adapted when a profile exists, tiered, and returned sorted by
// final confidence descending.
func (s *Service) Suggestions(ctx context.Context, projectID, componentType string, factors ContextFactors) ([]Suggestion, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if componentType == "" {
		return nil, fmt.Errorf("component type cannot be empty")
	}

	patterns, err := s.store.QueryPatterns(ctx, projectID, PatternQuery{
		ComponentType: componentType,
		MinConfidence: s.engine.cfg.AdvisoryThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	if len(patterns) == 0 {
		return []Suggestion{}, nil
	}

	correlations, err := s.analyzer.Analyze(ctx, projectID, 0)
	if err != nil {
		return nil, fmt.Errorf("analyzing correlations: %w", err)
	}
	neighbors, bestScores := indexCorrelations(correlations)

	profile, err := s.learner.Learn(ctx, projectID, "")
	if err != nil {
		return nil, fmt.Errorf("learning preferences: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(patterns))
	for _, p := range patterns {
		history, err := s.store.ListFeedback(ctx, projectID, p.ID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("listing feedback for %s: %w", p.ID, err)
		}

		pf := factors
		if best, ok := bestScores[p.ID]; ok {
			score := best
			pf.CorrelationScore = &score
		}

		assessment := s.engine.Calculate(&p, history, pf)

		related := neighbors[p.ID]
		if len(related) > maxRelated {
			related = related[:maxRelated]
		}

		sg := Suggestion{
			ID:          p.ID,
			Type:        p.Enhancement.Type,
			Confidence:  assessment.Score,
			Enhancement: p.Enhancement,
			Reasoning:   assessment.Explanation,
			Related:     related,
			Metadata:    p.Metadata,
		}
		sg.Metadata.Confidence = assessment.Score

		if profile.SampleCount > 0 {
			profile.Adapt(&sg, p.ComponentType)
			sg.Metadata.Confidence = sg.Confidence
		}
		sg.Action = s.engine.Classify(sg.Confidence)

		suggestions = append(suggestions, sg)
	}

	sortSuggestions(suggestions)
	for i := range suggestions {
		s.metrics.observeSuggestion(ctx, &suggestions[i])
	}

	s.logger.Debug("suggestions served",
		zap.String("project_id", projectID),
		zap.String("component_type", componentType),
		zap.Int("count", len(suggestions)))

	return suggestions, nil
}

// RunDecaySweep applies time decay to every idle pattern in a project and
// returns how many confidences were lowered. Intended to be invoked by an
// external scheduler.
func (s *Service) RunDecaySweep(ctx context.Context, projectID string) (int, error) {
	if projectID == "" {
		return 0, ErrEmptyProjectID
	}

	patterns, err := s.store.ListPatterns(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("listing patterns: %w", err)
	}

	decayed := 0
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return decayed, err
		}
		next := s.engine.Decay(&p)
		if next >= p.Metadata.Confidence {
			continue
		}
		if err := s.store.UpdateConfidence(ctx, projectID, p.ID, next); err != nil {
			return decayed, fmt.Errorf("updating confidence for %s: %w", p.ID, err)
		}
		decayed++
	}

	s.logger.Info("decay sweep completed",
		zap.String("project_id", projectID),
		zap.Int("patterns", len(patterns)),
		zap.Int("decayed", decayed))

	return decayed, nil
}

// RunCorrelationAnalysis runs the pairwise correlation batch job.
// windowDays <= 0 uses the configured default window.
func (s *Service) RunCorrelationAnalysis(ctx context.Context, projectID string, windowDays int) ([]Correlation, error) {
	return s.analyzer.Analyze(ctx, projectID, time.Duration(windowDays)*24*time.Hour)
}

// RunPreferenceLearning rebuilds the preference profile for a project,
// optionally scoped to one user.
func (s *Service) RunPreferenceLearning(ctx context.Context, projectID, userID string) (*PreferenceProfile, error) {
	return s.learner.Learn(ctx, projectID, userID)
}

// RunCalibration audits predicted confidence against observed outcomes.
// windowDays <= 0 uses the configured default window.
func (s *Service) RunCalibration(ctx context.Context, projectID string, windowDays int) (*CalibrationReport, error) {
	return s.calibrator.Calibrate(ctx, projectID, time.Duration(windowDays)*24*time.Hour)
}

// RunRetentionCleanup removes patterns whose confidence has fallen below
// the retention cutoff and that have not been observed within the
// retention window. Returns how many patterns were removed.
func (s *Service) RunRetentionCleanup(ctx context.Context, projectID string) (int, error) {
	if projectID == "" {
		return 0, ErrEmptyProjectID
	}

	removed, err := s.store.DeletePatterns(ctx, projectID, DeleteCriteria{
		MaxConfidence:  s.engine.cfg.RetentionMaxConfidence,
		LastSeenBefore: s.clock.Now().Add(-s.engine.cfg.RetentionWindow),
	})
	if err != nil {
		return 0, fmt.Errorf("deleting patterns: %w", err)
	}

	if removed > 0 {
		s.logger.Info("retention cleanup removed stale patterns",
			zap.String("project_id", projectID),
			zap.Int("removed", removed))
	}
	return removed, nil
}

// indexCorrelations builds, per pattern, its neighbor list (strongest
// first) and its single best correlation score. Correlations arrive sorted
// by score descending, so append order preserves strength order.
func indexCorrelations(correlations []Correlation) (map[string][]string, map[string]float64) {
	neighbors := make(map[string][]string)
	best := make(map[string]float64)

	record := func(self, other string, score float64) {
		neighbors[self] = append(neighbors[self], other)
		if score > best[self] {
			best[self] = score
		}
	}
	for _, c := range correlations {
		record(c.PatternA, c.PatternB, c.Score)
		record(c.PatternB, c.PatternA, c.Score)
	}
	return neighbors, best
}

// sortSuggestions orders by final confidence descending with a stable ID
// tiebreak so callers see a deterministic ranking.
func sortSuggestions(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].ID < suggestions[j].ID
	})
}
