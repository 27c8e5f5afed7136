// Package badgerstore implements the patternbank persistence contract on
// an embedded Badger key-value store.
//
// Patterns and feedback rows are stored as JSON documents under prefixed
// keys. Upserts rely on Badger's optimistic transactions: conflicting
// concurrent upserts for the same pattern ID are retried, which gives the
// atomic increment-and-set semantics the contract requires without any
// in-process locks.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/patternbank"
)

const (
	patternPrefix  = "p:"
	feedbackPrefix = "f:"

	// upsertRetries bounds optimistic-transaction retries before the
	// conflict is surfaced to the caller.
	upsertRetries = 5
)

// Store is a Badger-backed implementation of patternbank.Store.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Options configures a badgerstore.Store.
type Options struct {
	// Path is the on-disk database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory, for tests and ephemeral runs.
	InMemory bool
}

// Open opens or creates the store. Callers own the returned store and must
// Close it.
func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bopts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %q: %w", patternbank.ErrStoreUnavailable, opts.Path, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing badger: %w", patternbank.ErrStoreUnavailable, err)
	}
	return nil
}

func patternKey(projectID, id string) []byte {
	return []byte(patternPrefix + projectID + ":" + id)
}

// feedbackKey orders rows by timestamp within a project so windowed scans
// read in time order.
func feedbackKey(fb *patternbank.Feedback) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", feedbackPrefix, fb.ProjectID, fb.Timestamp.UnixNano(), fb.ID))
}

// UpsertPattern inserts or merges a pattern inside one optimistic
// transaction, retrying on conflict.
func (s *Store) UpsertPattern(ctx context.Context, projectID string, p *patternbank.Pattern, action patternbank.FeedbackAction) (*patternbank.Pattern, error) {
	if projectID == "" {
		return nil, patternbank.ErrEmptyProjectID
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := patternKey(projectID, p.ID)

	var stored patternbank.Pattern
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				stored = *p
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &stored)
				}); err != nil {
					return err
				}
				stored.Metadata.Frequency++
				if p.Metadata.LastSeen.After(stored.Metadata.LastSeen) {
					stored.Metadata.LastSeen = p.Metadata.LastSeen
				}
				stored.Metadata.Confidence = patternbank.ApplyFeedbackAdjustment(stored.Metadata.Confidence, action)
			}

			buf, err := json.Marshal(&stored)
			if err != nil {
				return err
			}
			return txn.Set(key, buf)
		})
		if err == nil {
			out := stored
			return &out, nil
		}
		if errors.Is(err, badger.ErrConflict) && attempt < upsertRetries {
			s.logger.Debug("upsert conflict, retrying",
				zap.String("pattern_id", p.ID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return nil, fmt.Errorf("%w: upserting pattern %s: %w", patternbank.ErrStoreUnavailable, p.ID, err)
	}
}

// GetPattern retrieves one pattern by ID.
func (s *Store) GetPattern(ctx context.Context, projectID, id string) (*patternbank.Pattern, error) {
	var p patternbank.Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patternKey(projectID, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, patternbank.ErrPatternNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting pattern %s: %w", patternbank.ErrStoreUnavailable, id, err)
	}
	return &p, nil
}

// QueryPatterns scans the project's pattern prefix, filters, sorts, and
// bounds the results with the shared contract semantics.
func (s *Store) QueryPatterns(ctx context.Context, projectID string, q patternbank.PatternQuery) ([]patternbank.Pattern, error) {
	patterns, err := s.ListPatterns(ctx, projectID)
	if err != nil {
		return nil, err
	}

	results := patterns[:0]
	for i := range patterns {
		if patternbank.MatchesQuery(&patterns[i], q) {
			results = append(results, patterns[i])
		}
	}

	patternbank.SortPatterns(results)

	limit := q.Limit
	if limit <= 0 {
		limit = patternbank.DefaultQueryLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListPatterns returns every pattern stored for a project.
func (s *Store) ListPatterns(ctx context.Context, projectID string) ([]patternbank.Pattern, error) {
	prefix := []byte(patternPrefix + projectID + ":")

	var patterns []patternbank.Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p patternbank.Pattern
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			patterns = append(patterns, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: listing patterns: %w", patternbank.ErrStoreUnavailable, err)
	}
	return patterns, nil
}

// UpdateConfidence rewrites one pattern's confidence inside an optimistic
// transaction, retrying on conflict.
func (s *Store) UpdateConfidence(ctx context.Context, projectID, id string, confidence float64) error {
	if confidence < 0.0 || confidence > 1.0 {
		return patternbank.ErrInvalidConfidence
	}
	key := patternKey(projectID, id)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var p patternbank.Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			p.Metadata.Confidence = confidence
			buf, err := json.Marshal(&p)
			if err != nil {
				return err
			}
			return txn.Set(key, buf)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return patternbank.ErrPatternNotFound
		}
		if errors.Is(err, badger.ErrConflict) && attempt < upsertRetries {
			continue
		}
		return fmt.Errorf("%w: updating confidence for %s: %w", patternbank.ErrStoreUnavailable, id, err)
	}
}

// DeletePatterns removes patterns matching the retention criteria.
func (s *Store) DeletePatterns(ctx context.Context, projectID string, c patternbank.DeleteCriteria) (int, error) {
	patterns, err := s.ListPatterns(ctx, projectID)
	if err != nil {
		return 0, err
	}

	removed := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for i := range patterns {
			if !patternbank.MatchesDeleteCriteria(&patterns[i], c) {
				continue
			}
			if err := txn.Delete(patternKey(projectID, patterns[i].ID)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: deleting patterns: %w", patternbank.ErrStoreUnavailable, err)
	}
	return removed, nil
}

// AppendFeedback persists one immutable feedback row.
func (s *Store) AppendFeedback(ctx context.Context, fb *patternbank.Feedback) error {
	if err := fb.Validate(); err != nil {
		return err
	}

	buf, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("%w: encoding feedback: %w", patternbank.ErrStoreUnavailable, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(feedbackKey(fb), buf)
	}); err != nil {
		return fmt.Errorf("%w: appending feedback: %w", patternbank.ErrStoreUnavailable, err)
	}
	return nil
}

// ListFeedback returns feedback rows for one pattern since the cutoff,
// oldest first.
func (s *Store) ListFeedback(ctx context.Context, projectID, patternID string, since time.Time) ([]patternbank.Feedback, error) {
	rows, err := s.ListProjectFeedback(ctx, projectID, since)
	if err != nil {
		return nil, err
	}
	filtered := rows[:0]
	for _, fb := range rows {
		if fb.PatternID == patternID {
			filtered = append(filtered, fb)
		}
	}
	return filtered, nil
}

// ListProjectFeedback returns all feedback for a project since the cutoff,
// oldest first. Keys embed the timestamp, so the prefix scan can start at
// the cutoff and read in time order.
func (s *Store) ListProjectFeedback(ctx context.Context, projectID string, since time.Time) ([]patternbank.Feedback, error) {
	prefix := []byte(feedbackPrefix + projectID + ":")
	seek := prefix
	if !since.IsZero() && since.UnixNano() > 0 {
		seek = []byte(fmt.Sprintf("%s%s:%020d:", feedbackPrefix, projectID, since.UnixNano()))
	}

	var rows []patternbank.Feedback
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var fb patternbank.Feedback
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fb)
			}); err != nil {
				return err
			}
			rows = append(rows, fb)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: listing feedback: %w", patternbank.ErrStoreUnavailable, err)
	}
	return rows, nil
}

// compile-time contract check
var _ patternbank.Store = (*Store)(nil)
