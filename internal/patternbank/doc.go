// Package patternbank learns which automated design-code enhancements a
// project's users actually want, and scores how confident the system
// should be before acting on them autonomously.
//
// The package observes how users accept, reject, or modify enhancement
// suggestions, converts those observations into durable patterns, and
// computes a calibrated confidence score per pattern that drives whether
// a future suggestion is auto-applied, actively suggested, or only
// mentioned advisorially.
//
// # Core Concepts
//
// A Pattern is a learned association between a component context (e.g. a
// "button" in a React project) and a concrete enhancement. Identity is a
// deterministic content hash, so repeat observations merge into one
// pattern with an increasing frequency count. Feedback rows are the
// immutable evidentiary record behind each pattern's confidence.
//
// # Confidence System
//
// Confidence blends six weighted factors: observation frequency, recency,
// time-decayed feedback history, feedback stability, context match, and
// cross-pattern correlation. Scores are clamped to [0.1, 1.0] so a pattern
// can always recover, and tiered against configurable thresholds into
// auto_apply, suggest, or advisory actions. A cheap incremental update
// handles feedback-time adjustment; the full recompute serves batch and
// report paths. Idle patterns decay weekly so stale knowledge loses
// authority without explicit negative feedback.
//
// # Batch Analysis
//
// Three read-mostly batch jobs refine the loop: the correlation analyzer
// finds pattern pairs that share context, co-occur, or apply in sequence;
// the preference learner re-weights suggestions by per-component and
// per-enhancement acceptance rates; and the calibrator audits predicted
// confidence against observed outcomes, reporting reliability, sharpness,
// and accuracy with remediation guidance. All of them degrade to neutral
// defaults below their sample minimums instead of erroring.
//
// # Persistence
//
// The engine is persistence-agnostic: it reads and writes through the
// Store contract (upsert-by-id with atomic counters, filtered queries with
// sort and limit, bulk delete). MemoryStore serves tests and
// single-process use; see the badgerstore package for the embedded
// durable implementation.
//
// # Usage
//
//	store := patternbank.NewMemoryStore()
//	svc, err := patternbank.NewService(store, patternbank.DefaultConfig(), nil, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Feed an interaction from the transform engine
//	_, err = svc.ObserveInteraction(ctx, "proj_1", patternbank.Interaction{
//	    Action:        patternbank.ActionAccept,
//	    ComponentType: "button",
//	    Enhancement:   patternbank.Enhancement{Type: "spacing"},
//	})
//
//	// Serve ranked suggestions
//	suggestions, err := svc.Suggestions(ctx, "proj_1", "button", patternbank.ContextFactors{
//	    Framework: "react",
//	})
//	for _, sg := range suggestions {
//	    fmt.Printf("%.2f %-10s %s\n", sg.Confidence, sg.Action, sg.Reasoning)
//	}
package patternbank
