package patternbank

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLearner(t *testing.T, store Store, now time.Time) *PreferenceLearner {
	t.Helper()
	l, err := NewPreferenceLearner(store, FixedClock{At: now}, zap.NewNop())
	require.NoError(t, err)
	return l
}

// seedFeedback stores one pattern and a batch of feedback rows against it.
func seedFeedback(t *testing.T, store Store, patternID, componentType, enhType string, actions []FeedbackAction, userID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	p := storedPattern(patternID, componentType, 0.5, now)
	p.Enhancement.Type = enhType
	_, err := store.UpsertPattern(ctx, "proj_1", p, ActionAccept)
	require.NoError(t, err)

	for i, action := range actions {
		fb := Feedback{
			ID:        fmt.Sprintf("%s-%d", patternID, i),
			ProjectID: "proj_1",
			PatternID: patternID,
			UserID:    userID,
			Action:    action,
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.AppendFeedback(ctx, &fb))
	}
}

func TestLearn_TalliesAcceptanceRates(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	// 3 positive, 1 negative; modify and ignore carry no preference signal.
	seedFeedback(t, store, "p1", "button", "spacing",
		[]FeedbackAction{ActionAccept, ActionAccept, ActionManualApply, ActionReject, ActionModify, ActionIgnore}, "")

	profile, err := newTestLearner(t, store, now).Learn(context.Background(), "proj_1", "")
	require.NoError(t, err)

	assert.Equal(t, 4, profile.SampleCount)

	score, ok := profile.ComponentScore("button")
	assert.True(t, ok)
	assert.InDelta(t, 0.75, score, 1e-9)

	score, ok = profile.EnhancementScore("spacing")
	assert.True(t, ok)
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestLearn_SkipsDanglingPatternReferences(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := NewMemoryStore()

	fb := Feedback{ID: "f1", ProjectID: "proj_1", PatternID: "ghost", Action: ActionAccept, Timestamp: now}
	require.NoError(t, store.AppendFeedback(ctx, &fb))

	profile, err := newTestLearner(t, store, now).Learn(ctx, "proj_1", "")
	require.NoError(t, err)

	assert.Equal(t, 0, profile.SampleCount)
	assert.Empty(t, profile.Components)
}

func TestLearn_UserScoping(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	seedFeedback(t, store, "p1", "button", "spacing", []FeedbackAction{ActionAccept, ActionAccept}, "alice")
	seedFeedback(t, store, "p2", "card", "layout", []FeedbackAction{ActionReject}, "bob")

	profile, err := newTestLearner(t, store, now).Learn(context.Background(), "proj_1", "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", profile.UserID)
	assert.Equal(t, 2, profile.SampleCount)
	_, ok := profile.ComponentScore("card")
	assert.False(t, ok, "other users' feedback must not leak into a scoped profile")
}

func TestMissingBucketDefaultsToNeutral(t *testing.T) {
	profile := &PreferenceProfile{
		Components:   map[string]PreferenceBucket{},
		Enhancements: map[string]PreferenceBucket{},
	}

	score, ok := profile.ComponentScore("button")
	assert.False(t, ok)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestAdapt_RescalesConfidence(t *testing.T) {
	// 0.8 through two 0.9-score buckets: 0.8 * 0.95 * 0.95 = 0.722.
	profile := &PreferenceProfile{
		Components: map[string]PreferenceBucket{
			"button": {Accept: 9, Reject: 1, Score: 0.9},
		},
		Enhancements: map[string]PreferenceBucket{
			"spacing": {Accept: 9, Reject: 1, Score: 0.9},
		},
		SampleCount: 20,
	}

	s := Suggestion{ID: "p1", Type: "spacing", Confidence: 0.8, Reasoning: "confidence 0.80"}
	profile.Adapt(&s, "button")

	assert.InDelta(t, 0.722, s.Confidence, 0.0005)
	assert.Contains(t, s.Reasoning, "usually accept")
	assert.Contains(t, s.Reasoning, "worked well")
}

func TestAdapt_MissingBucketLeavesConfidenceAlone(t *testing.T) {
	profile := &PreferenceProfile{
		Components:   map[string]PreferenceBucket{},
		Enhancements: map[string]PreferenceBucket{},
	}

	s := Suggestion{ID: "p1", Type: "spacing", Confidence: 0.8, Reasoning: "confidence 0.80"}
	profile.Adapt(&s, "button")

	assert.InDelta(t, 0.8, s.Confidence, 1e-9)
	assert.Equal(t, "confidence 0.80", s.Reasoning)
}

func TestAdapt_ClampsAtFloor(t *testing.T) {
	profile := &PreferenceProfile{
		Components: map[string]PreferenceBucket{
			"button": {Reject: 10, Score: 0.0},
		},
		Enhancements: map[string]PreferenceBucket{
			"spacing": {Reject: 10, Score: 0.0},
		},
	}

	s := Suggestion{ID: "p1", Type: "spacing", Confidence: 0.2}
	profile.Adapt(&s, "button")

	// 0.2 * 0.5 * 0.5 = 0.05, floored at 0.1.
	assert.InDelta(t, 0.1, s.Confidence, 1e-9)
	assert.Contains(t, s.Reasoning, "usually reject")
}
