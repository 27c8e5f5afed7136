package patternbank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNow is the frozen instant the deterministic engine tests run at.
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), FixedClock{At: testNow})
	require.NoError(t, err)
	return e
}

func testPattern(frequency int, lastSeen time.Time) *Pattern {
	return &Pattern{
		ID:            "p1",
		ComponentType: "button",
		Enhancement:   Enhancement{Type: "spacing"},
		Context:       PatternContext{Framework: "react", Theme: "dark"},
		Metadata: PatternMetadata{
			Confidence: InitialConfidence,
			Frequency:  frequency,
			LastSeen:   lastSeen,
			Created:    lastSeen,
		},
	}
}

func acceptAt(ts time.Time) Feedback {
	return Feedback{
		ID:        "fb",
		ProjectID: "proj_1",
		PatternID: "p1",
		Action:    ActionAccept,
		Timestamp: ts,
	}
}

func TestCalculate_NewPatternNeutralBaseline(t *testing.T) {
	// A pattern observed once, just now, with no feedback and no context
	// match lands exactly on the neutral baseline:
	//   0.3*0.25 + 1.0*0.15 + 0.5*0.30 + 0.5*0.15 + 0.5*0.10 + 0.5*0.05
	e := newTestEngine(t)

	p := testPattern(1, testNow)
	a := e.Calculate(p, nil, ContextFactors{})

	assert.InDelta(t, 0.525, a.Score, 1e-9)
	assert.Equal(t, TierAdvisory, a.Action)
	assert.InDelta(t, 0.3, a.Factors.Frequency, 1e-9)
	assert.InDelta(t, 1.0, a.Factors.Recency, 1e-9)
	assert.InDelta(t, 0.5, a.Factors.Feedback, 1e-9)
	assert.InDelta(t, 0.5, a.Factors.Stability, 1e-9)
	assert.InDelta(t, 0.5, a.Factors.Context, 1e-9)
	assert.InDelta(t, 0.5, a.Factors.Correlation, 1e-9)
}

func TestCalculate_StrongPositiveReachesAutoApply(t *testing.T) {
	// Frequent, recent, consistently accepted, fully context-matched, and
	// strongly correlated patterns must clear the auto-apply threshold.
	e := newTestEngine(t)

	p := testPattern(30, testNow)
	p.Enhancement.Tokens = []string{"spacing.md"}

	var history []Feedback
	for i := 0; i < 10; i++ {
		history = append(history, acceptAt(testNow))
	}

	corr := 1.0
	a := e.Calculate(p, history, ContextFactors{
		Framework:        "react",
		Theme:            "dark",
		CorrelationScore: &corr,
	})

	assert.GreaterOrEqual(t, a.Score, 0.9)
	assert.Equal(t, TierAutoApply, a.Action)
}

func TestCalculate_ModificationRatePenalty(t *testing.T) {
	// A history dominated by modifications scores lower than the same
	// history of clean accepts.
	e := newTestEngine(t)
	p := testPattern(10, testNow)

	accepts := make([]Feedback, 6)
	modifies := make([]Feedback, 6)
	for i := range accepts {
		accepts[i] = acceptAt(testNow)
		modifies[i] = acceptAt(testNow)
		modifies[i].Action = ActionModify
	}

	clean := e.Calculate(p, accepts, ContextFactors{})
	heavy := e.Calculate(p, modifies, ContextFactors{})

	assert.Less(t, heavy.Score, clean.Score)
}

func TestCalculate_ManualApplyShareBonus(t *testing.T) {
	// More than 30% manual applies earns the strong-signal bonus over a
	// pure accept history.
	e := newTestEngine(t)
	p := testPattern(10, testNow)

	accepts := make([]Feedback, 4)
	withManual := make([]Feedback, 4)
	for i := range accepts {
		accepts[i] = acceptAt(testNow)
		withManual[i] = acceptAt(testNow)
	}
	withManual[0].Action = ActionManualApply
	withManual[1].Action = ActionManualApply

	base := e.Calculate(p, accepts, ContextFactors{})
	boosted := e.Calculate(p, withManual, ContextFactors{})

	assert.Greater(t, boosted.Score, base.Score)
}

func TestCalculate_AccessibilityBonus(t *testing.T) {
	// Accessibility-focused enhancements get a small boost, detected from
	// the type name or from the properties they touch.
	e := newTestEngine(t)

	plain := testPattern(5, testNow)
	aria := testPattern(5, testNow)
	aria.Enhancement.Properties = map[string]any{"aria-label": "close"}

	base := e.Calculate(plain, nil, ContextFactors{})
	boosted := e.Calculate(aria, nil, ContextFactors{})

	assert.InDelta(t, base.Score+0.05, boosted.Score, 1e-9)
}

func TestCalculate_RatingBonus(t *testing.T) {
	// A 5-star rating adds to the feedback numerator, so a rated accept
	// outscores an unrated one.
	e := newTestEngine(t)
	p := testPattern(5, testNow)

	rated := acceptAt(testNow)
	rated.Rating = 5

	unratedScore := e.Calculate(p, []Feedback{acceptAt(testNow)}, ContextFactors{}).Score
	ratedScore := e.Calculate(p, []Feedback{rated}, ContextFactors{}).Score

	assert.Greater(t, ratedScore, unratedScore)
}

func TestCalculate_IgnoredFeedbackIsSkipped(t *testing.T) {
	// Ignore events carry no feedback-factor signal; a history of only
	// ignores behaves like no history at all for that factor.
	e := newTestEngine(t)
	p := testPattern(1, testNow)

	ignore := acceptAt(testNow)
	ignore.Action = ActionIgnore

	withIgnores := e.Calculate(p, []Feedback{ignore, ignore}, ContextFactors{})
	assert.InDelta(t, 0.5, withIgnores.Factors.Feedback, 1e-9)
}

func TestCalculate_FrequencyMonotonicity(t *testing.T) {
	// More observations never lower the score, all else equal.
	e := newTestEngine(t)

	prev := 0.0
	for _, freq := range []int{1, 2, 4, 11, 26, 100} {
		score := e.Calculate(testPattern(freq, testNow), nil, ContextFactors{}).Score
		assert.GreaterOrEqual(t, score, prev, "frequency %d", freq)
		prev = score
	}
}

func TestCalculate_RecencySteps(t *testing.T) {
	// The recency factor follows the documented step curve.
	e := newTestEngine(t)

	tests := []struct {
		ageDays int
		want    float64
	}{
		{0, 1.0},
		{5, 0.9},
		{20, 0.7},
		{60, 0.5},
		{200, 0.3},
	}
	for _, tt := range tests {
		p := testPattern(1, testNow.AddDate(0, 0, -tt.ageDays))
		a := e.Calculate(p, nil, ContextFactors{})
		assert.InDelta(t, tt.want, a.Factors.Recency, 1e-9, "age %d days", tt.ageDays)
	}
}

func TestCalculate_BoundsAndDeterminism(t *testing.T) {
	// Scores stay inside [0.1, 1.0] and identical inputs produce identical
	// assessments.
	e := newTestEngine(t)

	p := testPattern(1, testNow.AddDate(0, 0, -200))
	history := []Feedback{acceptAt(testNow)}
	for i := 0; i < 8; i++ {
		fb := acceptAt(testNow.Add(-time.Duration(i) * time.Hour))
		fb.Action = ActionModify
		history = append(history, fb)
	}

	first := e.Calculate(p, history, ContextFactors{})
	second := e.Calculate(p, history, ContextFactors{})

	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first.Score, 0.1)
	assert.LessOrEqual(t, first.Score, 1.0)
}

func TestCalculate_ExplanationNamesTopFactors(t *testing.T) {
	e := newTestEngine(t)

	a := e.Calculate(testPattern(30, testNow), nil, ContextFactors{})

	assert.Contains(t, a.Explanation, "confidence")
	assert.NotEmpty(t, a.Explanation)
}

func TestClassify(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, TierAutoApply, e.Classify(0.95))
	assert.Equal(t, TierAutoApply, e.Classify(0.9))
	assert.Equal(t, TierSuggest, e.Classify(0.89))
	assert.Equal(t, TierSuggest, e.Classify(0.7))
	assert.Equal(t, TierAdvisory, e.Classify(0.69))
	assert.Equal(t, TierAdvisory, e.Classify(0.0))
}

func TestApplyFeedbackAdjustment(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		action FeedbackAction
		want   float64
	}{
		{"accept adds 0.1", 0.5, ActionAccept, 0.6},
		{"manual apply adds 0.15", 0.5, ActionManualApply, 0.65},
		{"reject subtracts 0.2", 0.5, ActionReject, 0.3},
		{"ignore subtracts 0.05", 0.5, ActionIgnore, 0.45},
		{"modify is neutral", 0.5, ActionModify, 0.5},
		{"accept clamps at 1.0", 0.95, ActionAccept, 1.0},
		{"reject clamps at 0.0", 0.1, ActionReject, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ApplyFeedbackAdjustment(tt.start, tt.action), 1e-9)
		})
	}
}

func TestDecay(t *testing.T) {
	e := newTestEngine(t)

	t.Run("recently seen patterns are untouched", func(t *testing.T) {
		p := testPattern(5, testNow.AddDate(0, 0, -3))
		p.Metadata.Confidence = 0.8
		assert.InDelta(t, 0.8, e.Decay(p), 1e-9)
	})

	t.Run("idle patterns lose 5% per full week", func(t *testing.T) {
		p := testPattern(5, testNow.AddDate(0, 0, -21))
		p.Metadata.Confidence = 0.8
		want := 0.8 * 0.95 * 0.95 * 0.95
		assert.InDelta(t, want, e.Decay(p), 1e-9)
	})

	t.Run("partial weeks do not count", func(t *testing.T) {
		p := testPattern(5, testNow.AddDate(0, 0, -13))
		p.Metadata.Confidence = 0.8
		assert.InDelta(t, 0.8*0.95, e.Decay(p), 1e-9)
	})

	t.Run("decay floors at the confidence floor", func(t *testing.T) {
		p := testPattern(5, testNow.AddDate(-2, 0, 0))
		p.Metadata.Confidence = 0.3
		assert.InDelta(t, 0.1, e.Decay(p), 1e-9)
	})
}

func TestConfigValidate_Engine(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Weights.Frequency = 0.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("thresholds must not invert", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AutoApplyThreshold = 0.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("decay rate must be a fraction", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DecayRate = 1.0
		assert.Error(t, cfg.Validate())
	})
}
