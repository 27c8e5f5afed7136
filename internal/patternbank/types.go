package patternbank

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for pattern bank operations.
var (
	ErrPatternNotFound   = errors.New("pattern not found")
	ErrInvalidPattern    = errors.New("invalid pattern")
	ErrEmptyProjectID    = errors.New("project ID cannot be empty")
	ErrEmptyPatternID    = errors.New("pattern ID cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidAction     = errors.New("unknown feedback action")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")

	// ErrStoreUnavailable wraps persistence failures. The engine has no
	// independent durability, so store errors propagate to the caller,
	// which decides retry and backoff policy.
	ErrStoreUnavailable = errors.New("pattern store unavailable")
)

// FeedbackAction is a user reaction to a suggested pattern application.
type FeedbackAction string

const (
	// ActionAccept indicates the suggestion was applied as-is.
	ActionAccept FeedbackAction = "accept"

	// ActionReject indicates the suggestion was declined.
	ActionReject FeedbackAction = "reject"

	// ActionModify indicates the suggestion was applied after manual edits.
	ActionModify FeedbackAction = "modify"

	// ActionManualApply indicates the user made the same change by hand,
	// the strongest positive signal.
	ActionManualApply FeedbackAction = "manual_apply"

	// ActionIgnore indicates the suggestion was shown and never acted on.
	ActionIgnore FeedbackAction = "ignore"
)

// Valid reports whether the action is one of the known feedback actions.
func (a FeedbackAction) Valid() bool {
	switch a {
	case ActionAccept, ActionReject, ActionModify, ActionManualApply, ActionIgnore:
		return true
	}
	return false
}

// Positive reports whether the action counts as a positive outcome for
// preference learning and calibration (accept or manual_apply).
func (a FeedbackAction) Positive() bool {
	return a == ActionAccept || a == ActionManualApply
}

// SuggestionAction is the autonomy tier assigned to a suggestion.
type SuggestionAction string

const (
	// TierAutoApply means confidence is high enough to apply without asking.
	TierAutoApply SuggestionAction = "auto_apply"

	// TierSuggest means the suggestion is actively surfaced for approval.
	TierSuggest SuggestionAction = "suggest"

	// TierAdvisory means the suggestion is only mentioned in passing.
	TierAdvisory SuggestionAction = "advisory"
)

// Enhancement is the concrete design-code change a pattern recommends.
type Enhancement struct {
	// Type identifies the kind of change (e.g. "spacing", "color-token").
	Type string `json:"type"`

	// Properties holds the CSS/HTML properties the change touches.
	Properties map[string]any `json:"properties,omitempty"`

	// Tokens lists design tokens the change references.
	Tokens []string `json:"tokens,omitempty"`
}

// PatternContext describes where a pattern was observed. All fields are
// optional free-form strings.
type PatternContext struct {
	Framework   string `json:"framework,omitempty"`
	Theme       string `json:"theme,omitempty"`
	BrandPackID string `json:"brand_pack_id,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	Location    string `json:"location,omitempty"`
}

// asMap returns the non-empty context fields keyed by name. Used by the
// correlation analyzer's context-similarity computation.
func (c PatternContext) asMap() map[string]string {
	m := make(map[string]string, 5)
	if c.Framework != "" {
		m["framework"] = c.Framework
	}
	if c.Theme != "" {
		m["theme"] = c.Theme
	}
	if c.BrandPackID != "" {
		m["brand_pack_id"] = c.BrandPackID
	}
	if c.FileType != "" {
		m["file_type"] = c.FileType
	}
	if c.Location != "" {
		m["location"] = c.Location
	}
	return m
}

// PatternMetadata tracks the evidentiary state of a pattern.
type PatternMetadata struct {
	// Confidence is a score from 0.0 to 1.0 estimating how likely a
	// suggestion based on this pattern is to be well received.
	Confidence float64 `json:"confidence"`

	// Frequency is how many times this pattern has been observed.
	// It only ever increases.
	Frequency int `json:"frequency"`

	// LastSeen is when the pattern was last observed.
	LastSeen time.Time `json:"last_seen"`

	// Created is when the pattern was first observed.
	Created time.Time `json:"created"`
}

// Pattern is a learned association between a component context and an
// enhancement.
//
// Identity is a stable content hash over (componentType, enhancement type,
// enhancement properties, framework, theme). One pattern exists per unique
// ID per project; repeat observations increment Frequency and adjust
// Confidence, they never create duplicates.
type Pattern struct {
	// ID is the deterministic content hash identifying this pattern.
	// Best-effort unique: collisions are tolerated but rare.
	ID string `json:"id"`

	// ComponentType tags the UI component this pattern applies to
	// (e.g. "button", "card").
	ComponentType string `json:"component_type"`

	// Enhancement is the concrete change being recommended.
	Enhancement Enhancement `json:"enhancement"`

	// Context describes where the pattern was observed.
	Context PatternContext `json:"context"`

	// Metadata tracks confidence, frequency, and observation times.
	Metadata PatternMetadata `json:"metadata"`
}

// Validate checks that the pattern has the fields required for storage.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrEmptyPatternID
	}
	if p.ComponentType == "" {
		return ErrInvalidPattern
	}
	if p.Metadata.Confidence < 0.0 || p.Metadata.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	if p.Metadata.Frequency < 1 {
		return errors.New("pattern frequency must be at least 1")
	}
	return nil
}

// Interaction is a raw event emitted by the transform engine whenever a
// user accepts, rejects, or manually applies an enhancement. The engine
// never owns this stream; it only consumes it.
type Interaction struct {
	Action        FeedbackAction `json:"action"`
	ComponentType string         `json:"component_type"`
	Enhancement   Enhancement    `json:"enhancement"`
	Context       PatternContext `json:"context"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Feedback is one recorded user reaction to a suggested pattern
// application. Feedback rows are immutable once written; the aggregate of
// rows for a pattern is the evidentiary basis for its confidence.
type Feedback struct {
	// ID is the unique feedback identifier (UUID).
	ID string `json:"id"`

	// ProjectID identifies which project this feedback belongs to.
	ProjectID string `json:"project_id"`

	// PatternID references the pattern the suggestion came from. Not
	// enforced: feedback for an unknown pattern is still recorded.
	PatternID string `json:"pattern_id"`

	// UserID optionally attributes the feedback to a user.
	UserID string `json:"user_id,omitempty"`

	// Action is the user's reaction.
	Action FeedbackAction `json:"action"`

	// Rating is an optional 1-5 score. Zero means not rated.
	Rating int `json:"rating,omitempty"`

	// Comments is optional free-form commentary.
	Comments string `json:"comments,omitempty"`

	// Context captures where the feedback was given.
	Context PatternContext `json:"context,omitempty"`

	// Timestamp is when the feedback was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// NewFeedback creates a feedback record with a generated UUID.
func NewFeedback(projectID, patternID string, action FeedbackAction, at time.Time) (*Feedback, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	return &Feedback{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		PatternID: patternID,
		Action:    action,
		Timestamp: at,
	}, nil
}

// Validate checks the feedback record before it is persisted.
func (f *Feedback) Validate() error {
	if f.ID == "" {
		return errors.New("feedback ID cannot be empty")
	}
	if f.ProjectID == "" {
		return ErrEmptyProjectID
	}
	if !f.Action.Valid() {
		return ErrInvalidAction
	}
	if f.Rating != 0 && (f.Rating < 1 || f.Rating > 5) {
		return ErrInvalidRating
	}
	return nil
}

// CorrelationType classifies how two patterns relate.
type CorrelationType string

const (
	// CorrelationContextual means the patterns share most of their context.
	CorrelationContextual CorrelationType = "contextual"

	// CorrelationSequential means one pattern tends to follow the other.
	CorrelationSequential CorrelationType = "sequential"

	// CorrelationComplementary means the patterns co-occur without a
	// strong ordering.
	CorrelationComplementary CorrelationType = "complementary"

	// CorrelationWeak means the relationship is below useful strength.
	CorrelationWeak CorrelationType = "weak"
)

// CorrelationDetails breaks a correlation score into its components.
type CorrelationDetails struct {
	ContextSimilarity float64 `json:"context_similarity"`
	CoOccurrence      float64 `json:"co_occurrence"`
	TimingCorrelation float64 `json:"timing_correlation"`
}

// Correlation is a derived relationship between two patterns. It is
// recomputed on demand and never required to be persisted.
type Correlation struct {
	PatternA string             `json:"pattern_a"`
	PatternB string             `json:"pattern_b"`
	Score    float64            `json:"score"`
	Details  CorrelationDetails `json:"details"`
	Type     CorrelationType    `json:"type"`
}

// PreferenceBucket aggregates accept/reject counts for one component type
// or enhancement type.
type PreferenceBucket struct {
	Accept int `json:"accept"`
	Reject int `json:"reject"`

	// Score is accept/(accept+reject), defaulting to 0.5 with no samples.
	Score float64 `json:"score"`
}

// PreferenceProfile holds learned acceptance rates per component type and
// per enhancement type for a project (optionally scoped to a user).
type PreferenceProfile struct {
	ProjectID    string                      `json:"project_id"`
	UserID       string                      `json:"user_id,omitempty"`
	Components   map[string]PreferenceBucket `json:"components"`
	Enhancements map[string]PreferenceBucket `json:"enhancements"`

	// SampleCount is the number of feedback rows the profile was built from.
	SampleCount int `json:"sample_count"`

	// GeneratedAt is when the profile was computed.
	GeneratedAt time.Time `json:"generated_at"`
}

// Suggestion is a confidence-scored, action-tagged recommendation returned
// by the orchestrator.
type Suggestion struct {
	// ID is the underlying pattern ID.
	ID string `json:"id"`

	// Type is the enhancement type being recommended.
	Type string `json:"type"`

	// Confidence is the final score after preference adaptation.
	Confidence float64 `json:"confidence"`

	// Action is the autonomy tier derived from Confidence.
	Action SuggestionAction `json:"action"`

	// Enhancement is the concrete change to apply.
	Enhancement Enhancement `json:"enhancement"`

	// Reasoning is a human-readable explanation of the score.
	Reasoning string `json:"reasoning"`

	// Related lists up to three correlated pattern IDs, strongest first.
	Related []string `json:"related,omitempty"`

	// Metadata mirrors the pattern's evidentiary state at scoring time.
	Metadata PatternMetadata `json:"metadata"`
}
