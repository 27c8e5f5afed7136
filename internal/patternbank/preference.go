package patternbank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PreferenceLearner aggregates feedback into per-component-type and
// per-enhancement-type acceptance rates, and re-weights suggestion
// confidence with them.
//
// Only accept and manual_apply count as positive, only reject as negative.
// Modify and ignore inform stability, not preference, and are skipped.
type PreferenceLearner struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

// NewPreferenceLearner creates a preference learner.
func NewPreferenceLearner(store Store, clock Clock, logger *zap.Logger) (*PreferenceLearner, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceLearner{store: store, clock: clock, logger: logger}, nil
}

// Learn builds a preference profile from all recorded feedback for a
// project. userID is optional; when set, only feedback attributed to that
// user is tallied.
func (l *PreferenceLearner) Learn(ctx context.Context, projectID, userID string) (*PreferenceProfile, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}

	feedback, err := l.store.ListProjectFeedback(ctx, projectID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}

	profile := &PreferenceProfile{
		ProjectID:    projectID,
		UserID:       userID,
		Components:   make(map[string]PreferenceBucket),
		Enhancements: make(map[string]PreferenceBucket),
		GeneratedAt:  l.clock.Now(),
	}

	for _, fb := range feedback {
		if userID != "" && fb.UserID != userID {
			continue
		}

		// Join feedback to its pattern to learn what it was about.
		// Dangling references are tolerated and simply skipped here.
		p, err := l.store.GetPattern(ctx, projectID, fb.PatternID)
		if err != nil {
			continue
		}

		positive := fb.Action.Positive()
		negative := fb.Action == ActionReject
		if !positive && !negative {
			continue
		}

		tally(profile.Components, p.ComponentType, positive)
		tally(profile.Enhancements, p.Enhancement.Type, positive)
		profile.SampleCount++
	}

	rescore(profile.Components)
	rescore(profile.Enhancements)

	l.logger.Debug("preference profile built",
		zap.String("project_id", projectID),
		zap.Int("samples", profile.SampleCount),
		zap.Int("component_buckets", len(profile.Components)),
		zap.Int("enhancement_buckets", len(profile.Enhancements)))

	return profile, nil
}

// tally increments a bucket's accept or reject count.
func tally(buckets map[string]PreferenceBucket, key string, positive bool) {
	if key == "" {
		return
	}
	b := buckets[key]
	if positive {
		b.Accept++
	} else {
		b.Reject++
	}
	buckets[key] = b
}

// rescore derives each bucket's score from its tallies.
func rescore(buckets map[string]PreferenceBucket) {
	for key, b := range buckets {
		total := b.Accept + b.Reject
		if total == 0 {
			b.Score = 0.5
		} else {
			b.Score = float64(b.Accept) / float64(total)
		}
		buckets[key] = b
	}
}

// ComponentScore returns the learned acceptance rate for a component type,
// defaulting to the neutral 0.5 when no samples exist.
func (p *PreferenceProfile) ComponentScore(componentType string) (float64, bool) {
	b, ok := p.Components[componentType]
	if !ok {
		return 0.5, false
	}
	return b.Score, true
}

// EnhancementScore returns the learned acceptance rate for an enhancement
// type, defaulting to the neutral 0.5 when no samples exist.
func (p *PreferenceProfile) EnhancementScore(enhancementType string) (float64, bool) {
	b, ok := p.Enhancements[enhancementType]
	if !ok {
		return 0.5, false
	}
	return b.Score, true
}

// Adapt rescales a suggestion's confidence by the learned preferences.
//
// Each multiplier (0.5 + score*0.5) is applied independently, and only when
// its bucket exists; the result is clamped to [0.1, 1.0]. When a score is
// markedly high (>0.7) or low (<0.3) in either dimension a short
// explanation is appended to the suggestion's reasoning.
func (p *PreferenceProfile) Adapt(s *Suggestion, componentType string) {
	notes := make([]string, 0, 2)

	if score, ok := p.ComponentScore(componentType); ok {
		s.Confidence *= 0.5 + score*0.5
		if score > 0.7 {
			notes = append(notes, fmt.Sprintf("you usually accept %s changes", componentType))
		} else if score < 0.3 {
			notes = append(notes, fmt.Sprintf("you usually reject %s changes", componentType))
		}
	}
	if score, ok := p.EnhancementScore(s.Type); ok {
		s.Confidence *= 0.5 + score*0.5
		if score > 0.7 {
			notes = append(notes, fmt.Sprintf("%s enhancements have worked well for you", s.Type))
		} else if score < 0.3 {
			notes = append(notes, fmt.Sprintf("%s enhancements are often declined", s.Type))
		}
	}

	s.Confidence = clamp(s.Confidence, 0.1, 1.0)
	if len(notes) > 0 {
		s.Reasoning = s.Reasoning + " (" + strings.Join(notes, "; ") + ")"
	}
}
