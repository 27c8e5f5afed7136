package patternbank

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// FactorWeights holds the relative weight of each confidence factor.
// Weights must sum to 1.0.
type FactorWeights struct {
	Frequency   float64 `json:"frequency"`
	Recency     float64 `json:"recency"`
	Feedback    float64 `json:"feedback"`
	Stability   float64 `json:"stability"`
	Context     float64 `json:"context"`
	Correlation float64 `json:"correlation"`
}

// DefaultFactorWeights returns the documented default weighting.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		Frequency:   0.25,
		Recency:     0.15,
		Feedback:    0.30,
		Stability:   0.15,
		Context:     0.10,
		Correlation: 0.05,
	}
}

// Config holds every tunable of the engine. It is passed explicitly into
// constructors; there are no package-level mutable settings. Callers may
// tighten thresholds per deployment.
type Config struct {
	// Weights are the per-factor confidence weights.
	Weights FactorWeights `json:"weights"`

	// AutoApplyThreshold is the minimum confidence for the auto_apply tier.
	AutoApplyThreshold float64 `json:"auto_apply_threshold"`

	// SuggestThreshold is the minimum confidence for the suggest tier.
	SuggestThreshold float64 `json:"suggest_threshold"`

	// AdvisoryThreshold is the minimum confidence for a pattern to be
	// considered at all. Zero admits everything.
	AdvisoryThreshold float64 `json:"advisory_threshold"`

	// VolatilityThreshold normalizes feedback variance in the stability
	// factor.
	VolatilityThreshold float64 `json:"volatility_threshold"`

	// FeedbackHalfLifeDays is the decay constant for feedback time
	// weighting: weight = exp(-ageDays / FeedbackHalfLifeDays).
	FeedbackHalfLifeDays float64 `json:"feedback_half_life_days"`

	// DecayRate is the weekly multiplier applied to idle patterns.
	DecayRate float64 `json:"decay_rate"`

	// DecayIdle is how long a pattern must go unobserved before the decay
	// sweep touches it.
	DecayIdle time.Duration `json:"decay_idle"`

	// ConfidenceFloor is the minimum confidence after full recompute or
	// decay. Confidence never collapses to zero so patterns can recover.
	ConfidenceFloor float64 `json:"confidence_floor"`

	// CorrelationWindow bounds how far back the correlation analyzer looks.
	CorrelationWindow time.Duration `json:"correlation_window"`

	// CorrelationMinSamples is the minimum feedback count per pattern for
	// it to enter pairwise analysis.
	CorrelationMinSamples int `json:"correlation_min_samples"`

	// CorrelationThreshold discards pairs scoring below it.
	CorrelationThreshold float64 `json:"correlation_threshold"`

	// CorrelationPairBudget caps how many pairs one analysis run scores.
	// Zero means no cap.
	CorrelationPairBudget int `json:"correlation_pair_budget"`

	// CalibrationWindow bounds how far back calibration looks.
	CalibrationWindow time.Duration `json:"calibration_window"`

	// RetentionWindow is how long low-confidence patterns are kept before
	// cleanup removes them.
	RetentionWindow time.Duration `json:"retention_window"`

	// RetentionMaxConfidence marks patterns eligible for cleanup when
	// their confidence is strictly below it.
	RetentionMaxConfidence float64 `json:"retention_max_confidence"`
}

// DefaultConfig returns the documented engine defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                DefaultFactorWeights(),
		AutoApplyThreshold:     0.9,
		SuggestThreshold:       0.7,
		AdvisoryThreshold:      0.0,
		VolatilityThreshold:    0.3,
		FeedbackHalfLifeDays:   30,
		DecayRate:              0.95,
		DecayIdle:              7 * 24 * time.Hour,
		ConfidenceFloor:        0.1,
		CorrelationWindow:      30 * 24 * time.Hour,
		CorrelationMinSamples:  5,
		CorrelationThreshold:   0.6,
		CorrelationPairBudget:  10000,
		CalibrationWindow:      30 * 24 * time.Hour,
		RetentionWindow:        90 * 24 * time.Hour,
		RetentionMaxConfidence: 0.1,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	sum := c.Weights.Frequency + c.Weights.Recency + c.Weights.Feedback +
		c.Weights.Stability + c.Weights.Context + c.Weights.Correlation
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("factor weights must sum to 1.0, got %v", sum)
	}
	if c.AutoApplyThreshold < c.SuggestThreshold {
		return fmt.Errorf("auto_apply threshold (%v) must be >= suggest threshold (%v)",
			c.AutoApplyThreshold, c.SuggestThreshold)
	}
	if c.VolatilityThreshold <= 0 {
		return fmt.Errorf("volatility threshold must be positive")
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		return fmt.Errorf("decay rate must be in (0, 1), got %v", c.DecayRate)
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// ContextFactors carries the caller's current context for the context-match
// factor, plus the externally supplied correlation score.
type ContextFactors struct {
	Framework   string `json:"framework,omitempty"`
	Theme       string `json:"theme,omitempty"`
	BrandPackID string `json:"brand_pack_id,omitempty"`
	FileType    string `json:"file_type,omitempty"`

	// CorrelationScore is supplied by the correlation analyzer. Nil means
	// no correlation data and falls back to the neutral 0.5.
	CorrelationScore *float64 `json:"correlation_score,omitempty"`
}

// FactorScores is the normalized per-factor breakdown of a confidence
// score.
type FactorScores struct {
	Frequency   float64 `json:"frequency"`
	Recency     float64 `json:"recency"`
	Feedback    float64 `json:"feedback"`
	Stability   float64 `json:"stability"`
	Context     float64 `json:"context"`
	Correlation float64 `json:"correlation"`
}

// Assessment is the full result of a confidence calculation.
type Assessment struct {
	// Score is the final confidence, clamped to [floor, 1.0].
	Score float64 `json:"score"`

	// Factors is the normalized factor breakdown before weighting.
	Factors FactorScores `json:"factors"`

	// Action is the autonomy tier derived from Score.
	Action SuggestionAction `json:"action"`

	// Explanation lists the top contributing factors in plain language.
	Explanation string `json:"explanation"`
}

// Engine computes calibrated confidence scores for patterns.
//
// The engine is stateless: each call derives everything from the pattern,
// its feedback history, and the injected clock, so results are
// deterministic for a fixed input set and a fixed now.
type Engine struct {
	cfg   Config
	clock Clock
}

// NewEngine creates a confidence engine. A nil clock uses the system clock.
func NewEngine(cfg Config, clock Clock) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{cfg: cfg, clock: clock}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Calculate computes the multi-factor confidence for a pattern given its
// feedback history and the caller's context.
func (e *Engine) Calculate(p *Pattern, history []Feedback, factors ContextFactors) Assessment {
	now := e.clock.Now()

	fs := FactorScores{
		Frequency:   frequencyFactor(p.Metadata.Frequency),
		Recency:     recencyFactor(now.Sub(p.Metadata.LastSeen)),
		Feedback:    e.feedbackFactor(history, now),
		Stability:   e.stabilityFactor(history),
		Context:     contextFactor(p.Context, factors),
		Correlation: correlationFactor(factors),
	}

	w := e.cfg.Weights
	score := fs.Frequency*w.Frequency +
		fs.Recency*w.Recency +
		fs.Feedback*w.Feedback +
		fs.Stability*w.Stability +
		fs.Context*w.Context +
		fs.Correlation*w.Correlation

	score += e.adjustments(p, history)
	score = clamp(score, e.cfg.ConfidenceFloor, 1.0)

	return Assessment{
		Score:       score,
		Factors:     fs,
		Action:      e.Classify(score),
		Explanation: explain(fs, w, score),
	}
}

// Classify maps a confidence score to its autonomy tier.
func (e *Engine) Classify(score float64) SuggestionAction {
	switch {
	case score >= e.cfg.AutoApplyThreshold:
		return TierAutoApply
	case score >= e.cfg.SuggestThreshold:
		return TierSuggest
	default:
		return TierAdvisory
	}
}

// ApplyFeedbackAdjustment is the low-latency incremental update applied
// when a single feedback event arrives. It is distinct from, and cheaper
// than, the full Calculate recompute: the full recompute serves batch and
// report paths, this serves feedback-time adjustment.
//
// Adjustments: accept +0.1, manual_apply +0.15, reject -0.2, ignore -0.05.
// Modify leaves the score unchanged (it feeds the modification-rate
// penalty on recompute instead). The result is clamped to [0, 1].
func ApplyFeedbackAdjustment(confidence float64, action FeedbackAction) float64 {
	switch action {
	case ActionAccept:
		confidence += 0.1
	case ActionManualApply:
		confidence += 0.15
	case ActionReject:
		confidence -= 0.2
	case ActionIgnore:
		confidence -= 0.05
	}
	return clamp(confidence, 0.0, 1.0)
}

// Decay returns the pattern's confidence after time decay.
//
// Patterns unobserved for longer than DecayIdle lose authority at
// DecayRate per idle week, floored at ConfidenceFloor. Patterns observed
// recently are returned unchanged. The result never exceeds the input.
func (e *Engine) Decay(p *Pattern) float64 {
	idle := e.clock.Now().Sub(p.Metadata.LastSeen)
	if idle <= e.cfg.DecayIdle {
		return p.Metadata.Confidence
	}
	weeks := float64(int(idle / (7 * 24 * time.Hour)))
	decayed := p.Metadata.Confidence * math.Pow(e.cfg.DecayRate, weeks)
	return clamp(decayed, e.cfg.ConfidenceFloor, 1.0)
}

// frequencyFactor maps observation count onto a saturating step curve.
func frequencyFactor(frequency int) float64 {
	switch {
	case frequency <= 1:
		return 0.3
	case frequency <= 3:
		return 0.5
	case frequency <= 10:
		return 0.7
	case frequency <= 25:
		return 0.85
	default:
		return 0.95
	}
}

// recencyFactor maps time since last observation onto a step curve.
func recencyFactor(sinceLastSeen time.Duration) float64 {
	days := sinceLastSeen.Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.9
	case days <= 30:
		return 0.7
	case days <= 90:
		return 0.5
	default:
		return 0.3
	}
}

// feedbackActionValue maps actions onto the feedback-factor scale.
//
// manual_apply deliberately scores 1.2: a very recent manual apply can
// contribute more than 1.0 to the weighted numerator. The value is not
// capped before multiplication by the time weight; the weighted average
// clamps it implicitly.
func feedbackActionValue(action FeedbackAction) (float64, bool) {
	switch action {
	case ActionAccept:
		return 1.0, true
	case ActionManualApply:
		return 1.2, true
	case ActionModify:
		return 0.7, true
	case ActionReject:
		return 0.0, true
	default:
		return 0, false
	}
}

// feedbackFactor computes the exponentially time-weighted feedback average.
// With no usable history it returns the neutral baseline 0.5.
func (e *Engine) feedbackFactor(history []Feedback, now time.Time) float64 {
	var num, den float64
	for _, fb := range history {
		value, ok := feedbackActionValue(fb.Action)
		if !ok {
			continue
		}
		ageDays := now.Sub(fb.Timestamp).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		tw := math.Exp(-ageDays / e.cfg.FeedbackHalfLifeDays)
		num += tw * value
		if fb.Rating >= 1 && fb.Rating <= 5 {
			num += tw * (float64(fb.Rating-1) / 4) * 0.5
		}
		den += tw
	}
	if den == 0 {
		return 0.5
	}
	return num / den
}

// stabilityActionScore maps actions onto the volatility scale used by the
// stability factor.
func stabilityActionScore(action FeedbackAction) float64 {
	switch action {
	case ActionAccept, ActionManualApply:
		return 1.0
	case ActionModify:
		return 0.5
	case ActionIgnore:
		return 0.3
	default: // reject
		return 0.0
	}
}

// stabilityFactor scores how consistent the feedback has been. Fewer than
// three samples degrade to the neutral 0.5 rather than erroring.
func (e *Engine) stabilityFactor(history []Feedback) float64 {
	if len(history) < 3 {
		return 0.5
	}

	scores := make([]float64, len(history))
	var mean float64
	for i, fb := range history {
		scores[i] = stabilityActionScore(fb.Action)
		mean += scores[i]
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	return 1.0 - math.Min(variance/e.cfg.VolatilityThreshold, 1.0)
}

// contextFactor starts from a 0.5 baseline and rewards exact matches
// between the pattern's context and the caller's.
func contextFactor(pc PatternContext, factors ContextFactors) float64 {
	score := 0.5
	if factors.Framework != "" && factors.Framework == pc.Framework {
		score += 0.15
	}
	if factors.BrandPackID != "" && factors.BrandPackID == pc.BrandPackID {
		score += 0.15
	}
	if factors.Theme != "" && factors.Theme == pc.Theme {
		score += 0.10
	}
	if factors.FileType != "" && factors.FileType == pc.FileType {
		score += 0.10
	}
	return clamp(score, 0.0, 1.0)
}

// correlationFactor returns the externally supplied correlation score, or
// the neutral 0.5 when the analyzer has no data for this pattern.
func correlationFactor(factors ContextFactors) float64 {
	if factors.CorrelationScore == nil {
		return 0.5
	}
	return clamp(*factors.CorrelationScore, 0.0, 1.0)
}

// adjustments applies the post-weighting bonuses and penalties.
func (e *Engine) adjustments(p *Pattern, history []Feedback) float64 {
	var adj float64

	if len(history) > 0 {
		var manual, modified int
		for _, fb := range history {
			switch fb.Action {
			case ActionManualApply:
				manual++
			case ActionModify:
				modified++
			}
		}
		total := float64(len(history))
		if float64(manual)/total > 0.30 {
			adj += 0.10
		}
		if float64(modified)/total > 0.50 {
			adj -= 0.15
		}
	}

	if targetsAccessibility(p.Enhancement) {
		adj += 0.05
	}
	if len(p.Enhancement.Tokens) > 0 {
		adj += 0.05
	}
	return adj
}

// accessibilityProperties are CSS/HTML properties whose presence marks an
// enhancement as accessibility-focused.
var accessibilityProperties = map[string]struct{}{
	"alt":           {},
	"contrast":      {},
	"focus":         {},
	"focus-visible": {},
	"outline":       {},
	"role":          {},
	"tabindex":      {},
}

// targetsAccessibility reports whether the enhancement touches
// accessibility-related properties.
func targetsAccessibility(enh Enhancement) bool {
	t := strings.ToLower(enh.Type)
	if strings.Contains(t, "accessibility") || strings.Contains(t, "a11y") {
		return true
	}
	for k := range enh.Properties {
		k = strings.ToLower(k)
		if strings.HasPrefix(k, "aria-") {
			return true
		}
		if _, ok := accessibilityProperties[k]; ok {
			return true
		}
	}
	return false
}

// factorPhrases are the canned explanation phrases per factor and level.
var factorPhrases = map[string][3]string{
	"frequency": {
		"observed many times across the project",
		"observed several times",
		"rarely observed so far",
	},
	"recency": {
		"seen very recently",
		"seen within the last month",
		"not seen in a long time",
	},
	"feedback": {
		"feedback has been strongly positive",
		"feedback has been mixed",
		"feedback has been mostly negative",
	},
	"stability": {
		"reactions have been highly consistent",
		"reactions vary somewhat",
		"reactions have been volatile",
	},
	"context": {
		"closely matches the current context",
		"partially matches the current context",
		"little overlap with the current context",
	},
	"correlation": {
		"strongly correlated with other accepted patterns",
		"some correlation with other patterns",
		"no supporting correlations",
	},
}

// explain renders the top three factors by weighted contribution into a
// plain-language explanation.
func explain(fs FactorScores, w FactorWeights, score float64) string {
	type contribution struct {
		name   string
		score  float64
		weight float64
	}
	contributions := []contribution{
		{"frequency", fs.Frequency, w.Frequency},
		{"recency", fs.Recency, w.Recency},
		{"feedback", fs.Feedback, w.Feedback},
		{"stability", fs.Stability, w.Stability},
		{"context", fs.Context, w.Context},
		{"correlation", fs.Correlation, w.Correlation},
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].score*contributions[i].weight >
			contributions[j].score*contributions[j].weight
	})

	phrases := make([]string, 0, 3)
	for _, c := range contributions[:3] {
		level := 2 // low
		switch {
		case c.score >= 0.7:
			level = 0
		case c.score >= 0.4:
			level = 1
		}
		phrases = append(phrases, factorPhrases[c.name][level])
	}

	return fmt.Sprintf("confidence %.2f: %s", score, strings.Join(phrases, "; "))
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
