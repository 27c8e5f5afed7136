package patternbank

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// calibrationBinCount is the number of equal-width confidence bins.
const calibrationBinCount = 10

// CalibrationBin is one equal-width confidence bin of (predicted, actual)
// pairs.
type CalibrationBin struct {
	// Low and High bound the bin's predicted-confidence range.
	Low  float64 `json:"low"`
	High float64 `json:"high"`

	// AvgPredicted is the mean predicted confidence in the bin.
	AvgPredicted float64 `json:"avg_predicted"`

	// AvgActual is the mean observed success rate in the bin.
	AvgActual float64 `json:"avg_actual"`

	// Count is how many patterns fell into the bin.
	Count int `json:"count"`
}

// CalibrationReport measures how well predicted confidence matches
// observed acceptance outcomes.
type CalibrationReport struct {
	ProjectID string    `json:"project_id"`
	Window    string    `json:"window"`
	Generated time.Time `json:"generated"`

	// Reliability is 1 minus the count-weighted mean bin gap between
	// predicted and actual. Closer to 1 is better calibrated.
	Reliability float64 `json:"reliability"`

	// Sharpness is the standard deviation of predicted confidences.
	// Higher means the model discriminates rather than clustering.
	Sharpness float64 `json:"sharpness"`

	// Accuracy is 1 minus the mean absolute prediction error.
	Accuracy float64 `json:"accuracy"`

	// SampleCount is how many patterns contributed a (predicted, actual)
	// pair.
	SampleCount int `json:"sample_count"`

	// Bins is the per-bin breakdown. Empty bins are omitted.
	Bins []CalibrationBin `json:"bins"`

	// Recommendations is remediation guidance. The calibrator is
	// diagnostic only; it reports, it never auto-corrects weights.
	Recommendations []string `json:"recommendations"`
}

// Calibrator audits the confidence loop by comparing stored confidence
// against actual acceptance outcomes over a trailing window.
type Calibrator struct {
	store  Store
	cfg    Config
	clock  Clock
	logger *zap.Logger
}

// NewCalibrator creates a calibration auditor.
func NewCalibrator(store Store, cfg Config, clock Clock, logger *zap.Logger) (*Calibrator, error) {
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
	return &Calibrator{store: store, cfg: cfg, clock: clock, logger: logger}, nil
}

// Calibrate builds a calibration report for a project. A non-positive
// window uses the configured default.
func (c *Calibrator) Calibrate(ctx context.Context, projectID string, window time.Duration) (*CalibrationReport, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if window <= 0 {
		window = c.cfg.CalibrationWindow
	}
	now := c.clock.Now()
	since := now.Add(-window)

	patterns, err := c.store.ListPatterns(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	feedback, err := c.store.ListProjectFeedback(ctx, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}

	byPattern := make(map[string][]Feedback)
	for _, fb := range feedback {
		byPattern[fb.PatternID] = append(byPattern[fb.PatternID], fb)
	}

	report := &CalibrationReport{
		ProjectID: projectID,
		Window:    window.String(),
		Generated: now,
	}

	var predicted, actual []float64
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := byPattern[p.ID]
		if len(rows) == 0 {
			continue
		}
		positives := 0
		for _, fb := range rows {
			if fb.Action.Positive() {
				positives++
			}
		}
		predicted = append(predicted, p.Metadata.Confidence)
		actual = append(actual, float64(positives)/float64(len(rows)))
	}
	report.SampleCount = len(predicted)

	// Below-minimum sample counts degrade to an empty report rather than
	// erroring, same as the other statistical paths.
	if report.SampleCount == 0 {
		report.Recommendations = []string{
			"Not enough feedback in the window to assess calibration",
		}
		return report, nil
	}

	type binAccum struct {
		sumPredicted float64
		sumActual    float64
		count        int
	}
	bins := make([]binAccum, calibrationBinCount)

	var absErrSum float64
	for i := range predicted {
		idx := int(predicted[i] * calibrationBinCount)
		if idx >= calibrationBinCount {
			idx = calibrationBinCount - 1
		}
		bins[idx].sumPredicted += predicted[i]
		bins[idx].sumActual += actual[i]
		bins[idx].count++
		absErrSum += math.Abs(predicted[i] - actual[i])
	}

	var weightedGap float64
	for i, b := range bins {
		if b.count == 0 {
			continue
		}
		avgP := b.sumPredicted / float64(b.count)
		avgA := b.sumActual / float64(b.count)
		weightedGap += math.Abs(avgP-avgA) * float64(b.count)
		report.Bins = append(report.Bins, CalibrationBin{
			Low:          float64(i) / calibrationBinCount,
			High:         float64(i+1) / calibrationBinCount,
			AvgPredicted: avgP,
			AvgActual:    avgA,
			Count:        b.count,
		})
	}

	total := float64(report.SampleCount)
	report.Reliability = 1.0 - weightedGap/total
	report.Sharpness = stddev(predicted)
	report.Accuracy = 1.0 - absErrSum/total
	report.Recommendations = recommendations(report)

	c.logger.Info("calibration report generated",
		zap.String("project_id", projectID),
		zap.Int("samples", report.SampleCount),
		zap.Float64("reliability", report.Reliability),
		zap.Float64("sharpness", report.Sharpness),
		zap.Float64("accuracy", report.Accuracy))

	return report, nil
}

// recommendations emits remediation guidance for weak calibration metrics.
func recommendations(r *CalibrationReport) []string {
	var recs []string
	if r.Reliability < 0.8 {
		recs = append(recs, "Confidence is not well calibrated - consider adjusting factor weights")
	}
	if r.Sharpness < 0.2 {
		recs = append(recs, "Confidence lacks discrimination - consider increasing factor sensitivity")
	}
	if r.Accuracy < 0.7 {
		recs = append(recs, "Low prediction accuracy - review the confidence calculation method")
	}
	return recs
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
