package patternbank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Empirical pairing windows. These values were tuned by observation, not
// derived from first principles.
// TODO: confirm the 1-hour and 10-minute windows with the product owner
// before changing them; downstream scoring depends on them as-is.
const (
	// coOccurrenceWindow is how close two positive events must be to count
	// as co-occurring.
	coOccurrenceWindow = time.Hour

	// sequenceWindow is how soon a pattern-B positive event must follow a
	// pattern-A positive event to count as sequential.
	sequenceWindow = 10 * time.Minute
)

// Analyzer finds pairs of patterns that co-occur, share context, or are
// applied in sequence.
//
// The pairwise scan is O(n^2) over patterns with enough samples; it is kept
// tractable by the feedback window, the minimum-sample filter, and a hard
// pair budget. Runs are read-mostly and tolerate a stale snapshot.
type Analyzer struct {
	store  Store
	cfg    Config
	clock  Clock
	logger *zap.Logger
}

// NewAnalyzer creates a correlation analyzer. A nil logger is replaced
// with a no-op logger, a nil clock with the system clock.
func NewAnalyzer(store Store, cfg Config, clock Clock, logger *zap.Logger) (*Analyzer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{store: store, cfg: cfg, clock: clock, logger: logger}, nil
}

// patternEvents is the per-pattern feedback snapshot a run works from.
type patternEvents struct {
	pattern   Pattern
	events    []Feedback  // all feedback in the window, oldest first
	positives []time.Time // accept/manual_apply timestamps, oldest first
}

// Analyze computes correlations between all qualifying pattern pairs for a
// project. A non-positive window uses the configured default.
//
// Cancellation and budget exhaustion end the run early with partial
// results rather than an error: correlation output is advisory.
func (a *Analyzer) Analyze(ctx context.Context, projectID string, window time.Duration) ([]Correlation, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if window <= 0 {
		window = a.cfg.CorrelationWindow
	}
	since := a.clock.Now().Add(-window)

	feedback, err := a.store.ListProjectFeedback(ctx, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	patterns, err := a.store.ListPatterns(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}

	byPattern := make(map[string][]Feedback)
	for _, fb := range feedback {
		byPattern[fb.PatternID] = append(byPattern[fb.PatternID], fb)
	}

	// Keep only patterns with enough samples in the window.
	qualified := make([]patternEvents, 0, len(patterns))
	for _, p := range patterns {
		events := byPattern[p.ID]
		if len(events) < a.cfg.CorrelationMinSamples {
			continue
		}
		pe := patternEvents{pattern: p, events: events}
		for _, fb := range events {
			if fb.Action.Positive() {
				pe.positives = append(pe.positives, fb.Timestamp)
			}
		}
		qualified = append(qualified, pe)
	}

	// Deterministic pair order regardless of map iteration.
	sort.Slice(qualified, func(i, j int) bool {
		return qualified[i].pattern.ID < qualified[j].pattern.ID
	})

	var results []Correlation
	pairsScored := 0
	budget := a.cfg.CorrelationPairBudget

scan:
	for i := 0; i < len(qualified); i++ {
		for j := i + 1; j < len(qualified); j++ {
			if ctx.Err() != nil {
				a.logger.Warn("correlation analysis cancelled, returning partial results",
					zap.String("project_id", projectID),
					zap.Int("pairs_scored", pairsScored))
				break scan
			}
			if budget > 0 && pairsScored >= budget {
				a.logger.Warn("correlation pair budget exhausted, returning partial results",
					zap.String("project_id", projectID),
					zap.Int("budget", budget))
				break scan
			}
			pairsScored++

			corr := scorePair(qualified[i], qualified[j])
			if corr.Score < a.cfg.CorrelationThreshold {
				continue
			}
			results = append(results, corr)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	a.logger.Debug("correlation analysis completed",
		zap.String("project_id", projectID),
		zap.Int("qualified_patterns", len(qualified)),
		zap.Int("pairs_scored", pairsScored),
		zap.Int("correlations", len(results)))

	return results, nil
}

// scorePair computes the correlation between two patterns.
func scorePair(a, b patternEvents) Correlation {
	details := CorrelationDetails{
		ContextSimilarity: contextSimilarity(a.pattern.Context, b.pattern.Context),
		CoOccurrence:      coOccurrence(a, b),
		TimingCorrelation: timingCorrelation(a, b),
	}

	score := 0.4*details.ContextSimilarity + 0.4*details.CoOccurrence + 0.2*details.TimingCorrelation

	return Correlation{
		PatternA: a.pattern.ID,
		PatternB: b.pattern.ID,
		Score:    score,
		Details:  details,
		Type:     classifyCorrelation(score, details.ContextSimilarity),
	}
}

// classifyCorrelation maps a score and context similarity onto a
// correlation type.
func classifyCorrelation(score, contextSim float64) CorrelationType {
	switch {
	case contextSim > 0.8:
		return CorrelationContextual
	case score > 0.8:
		return CorrelationSequential
	case score > 0.6:
		return CorrelationComplementary
	default:
		return CorrelationWeak
	}
}

// contextSimilarity is the fraction of matching keys between two context
// maps, with the size of the key union as denominator. Symmetric:
// contextSimilarity(a, b) == contextSimilarity(b, a).
func contextSimilarity(a, b PatternContext) float64 {
	am, bm := a.asMap(), b.asMap()

	union := make(map[string]struct{}, len(am)+len(bm))
	for k := range am {
		union[k] = struct{}{}
	}
	for k := range bm {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}

	matching := 0
	for k, v := range am {
		if bv, ok := bm[k]; ok && bv == v {
			matching++
		}
	}
	return float64(matching) / float64(len(union))
}

// coOccurrence counts positive-event pairings within the co-occurrence
// window, relative to the larger of the two feedback counts. Clamped to 1
// since dense bursts can pair more than once per event.
func coOccurrence(a, b patternEvents) float64 {
	denom := len(a.events)
	if len(b.events) > denom {
		denom = len(b.events)
	}
	if denom == 0 {
		return 0
	}

	pairs := 0
	for _, ta := range a.positives {
		for _, tb := range b.positives {
			d := ta.Sub(tb)
			if d < 0 {
				d = -d
			}
			if d <= coOccurrenceWindow {
				pairs++
			}
		}
	}
	return clamp(float64(pairs)/float64(denom), 0.0, 1.0)
}

// timingCorrelation is the fraction of pattern-A positive events followed
// within the sequence window by a pattern-B positive event, relative to
// pattern-A's event count. Asymmetric by design: it detects "A then B"
// sequences, not "B then A".
func timingCorrelation(a, b patternEvents) float64 {
	if len(a.events) == 0 {
		return 0
	}

	followed := 0
	for _, ta := range a.positives {
		for _, tb := range b.positives {
			gap := tb.Sub(ta)
			if gap > 0 && gap <= sequenceWindow {
				followed++
				break
			}
		}
	}
	return float64(followed) / float64(len(a.events))
}
