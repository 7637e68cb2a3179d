package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/filelock"
)

// StoreFileName is the persisted document's filename, relative to the
// project's .stomper directory.
const StoreFileName = "learning_data.json"

// Logger receives best-effort diagnostics from the store. A nil Logger is
// valid and silences these messages.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// Store is the learning store described in spec §4.1. It is safe for
// concurrent use by multiple goroutines within one process; cross-process
// safety for the persisted file is provided by an advisory file lock.
type Store struct {
	mu       sync.Mutex
	data     *LearningData
	path     string // always resolved relative to the main project root
	autoSave bool
	logger   Logger
}

// NewStore creates a Store whose persistence path is
// <projectRoot>/.stomper/learning_data.json. The path is resolved once at
// construction time and is never re-derived from a worktree root, per
// spec's invariant that the store survives worktree destruction.
func NewStore(projectRoot string, autoSave bool, logger Logger) (*Store, error) {
	path := filepath.Join(projectRoot, ".stomper", StoreFileName)

	s := &Store{
		path:     path,
		autoSave: autoSave,
		logger:   logger,
	}

	data, err := loadLearningData(path, logger)
	if err != nil {
		return nil, err
	}
	s.data = data

	return s, nil
}

// loadLearningData reads the persisted document. A missing file yields a
// fresh empty store. A corrupt file is logged and replaced in memory; the
// corruption is not written back until the next save.
func loadLearningData(path string, logger Logger) (*LearningData, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newLearningData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read learning store: %w", err)
	}

	var data LearningData
	if err := json.Unmarshal(raw, &data); err != nil {
		if logger != nil {
			logger.Warnf("learning store at %s is corrupt, starting fresh: %v", path, err)
		}
		return newLearningData(), nil
	}

	if data.Patterns == nil {
		data.Patterns = make(map[string]*ErrorPattern)
	}
	for _, p := range data.Patterns {
		if p.SuccessfulStrategies == nil {
			p.SuccessfulStrategies = make(map[PromptStrategy]bool)
		}
		if p.FailedStrategies == nil {
			p.FailedStrategies = make(map[PromptStrategy]bool)
		}
	}

	return &data, nil
}

// Save persists the current state atomically (write-then-rename), guarded
// by an advisory file lock so concurrent stomper processes never interleave
// writes.
func (s *Store) Save() error {
	// The mutex is held through the file write so that a save of an older
	// snapshot cannot land after, and overwrite, a save of a newer one.
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal learning data: %w", err)
	}

	return filelock.LockAndWrite(s.path, raw)
}

// Reset discards every recorded pattern and persists the empty store,
// the JSON-document equivalent of the teacher's "DELETE FROM
// task_executions" clear-all path. It returns the number of patterns
// that were discarded.
func (s *Store) Reset() (int, error) {
	s.mu.Lock()
	discarded := len(s.data.Patterns)
	s.data = newLearningData()
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return discarded, err
	}
	return discarded, nil
}

// RecordAttempt updates the corresponding ErrorPattern (creating it on
// first sight), increments the LearningData aggregates, appends an attempt
// record, and — when auto-save is enabled — persists. A persistence
// failure is logged but never returned: per spec §4.1, saving is
// best-effort.
func (s *Store) RecordAttempt(d defect.Defect, outcome AttemptOutcome, strategy PromptStrategy, file string) {
	s.mu.Lock()
	key := patternKey(d.Tool, d.Code)
	pattern, ok := s.data.Patterns[key]
	if !ok {
		pattern = newErrorPattern(d.Tool, d.Code)
		s.data.Patterns[key] = pattern
	}

	attempt := ErrorAttempt{
		Tool:      d.Tool,
		Code:      d.Code,
		Outcome:   outcome,
		Strategy:  strategy,
		Timestamp: time.Now(),
		File:      file,
	}
	pattern.Attempts = append(pattern.Attempts, attempt)
	pattern.TotalAttempts++

	switch outcome {
	case OutcomeSuccess:
		pattern.Successes++
		pattern.SuccessfulStrategies[strategy] = true
	case OutcomeFailure:
		pattern.Failures++
		pattern.FailedStrategies[strategy] = true
	case OutcomePartial, OutcomeSkipped:
		// counted in TotalAttempts but not in successes/failures,
		// matching the invariant total = successes + failures + |partial| + |skipped|
	}

	s.data.TotalAttempts++
	if outcome == OutcomeSuccess {
		s.data.TotalSuccesses++
	}
	s.data.LastUpdated = time.Now()
	s.mu.Unlock()

	if s.autoSave {
		if err := s.Save(); err != nil && s.logger != nil {
			s.logger.Warnf("failed to persist learning store: %v", err)
		}
	}
}

// SuccessRate returns the success rate for a (tool, code) pair, or 0 when
// there is no history.
func (s *Store) SuccessRate(tool, code string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.data.Patterns[patternKey(tool, code)]
	return p.SuccessRate()
}

// pattern returns a snapshot copy of the pattern for (tool, code), or nil.
// The copy is taken while s.mu is held so callers can read its Attempts
// slice and strategy maps after the lock is released without racing
// RecordAttempt's concurrent appends to the live pattern.
func (s *Store) pattern(tool, code string) *ErrorPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Patterns[patternKey(tool, code)].clone()
}

// Statistics summarizes the whole store.
type Statistics struct {
	OverallSuccessRate float64
	TotalAttempts      int
	TotalSuccesses     int
	TotalPatterns      int
	LastUpdated        time.Time
	DifficultErrors    []*ErrorPattern // top 5 lowest success_rate among patterns with >= 3 attempts
	EasyErrors         []*ErrorPattern // top 5 among patterns with >= 3 attempts and success_rate >= 80%
}

// Statistics computes the store-wide summary described in spec §4.1.
func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		OverallSuccessRate: s.data.OverallSuccessRate(),
		TotalAttempts:      s.data.TotalAttempts,
		TotalSuccesses:     s.data.TotalSuccesses,
		TotalPatterns:      len(s.data.Patterns),
		LastUpdated:        s.data.LastUpdated,
	}

	var eligible []*ErrorPattern
	for _, p := range s.data.Patterns {
		if p.TotalAttempts >= 3 {
			eligible = append(eligible, p)
		}
	}

	stats.DifficultErrors = topN(eligible, 5, func(a, b *ErrorPattern) bool {
		return a.SuccessRate() < b.SuccessRate()
	}, nil)

	stats.EasyErrors = topN(eligible, 5, func(a, b *ErrorPattern) bool {
		return a.SuccessRate() > b.SuccessRate()
	}, func(p *ErrorPattern) bool { return p.SuccessRate() >= 0.8 })

	return stats
}

// topN returns up to n elements of patterns sorted by less, optionally
// filtered by keep first.
func topN(patterns []*ErrorPattern, n int, less func(a, b *ErrorPattern) bool, keep func(*ErrorPattern) bool) []*ErrorPattern {
	var filtered []*ErrorPattern
	for _, p := range patterns {
		if keep == nil || keep(p) {
			filtered = append(filtered, p)
		}
	}

	// insertion sort: these slices are tiny (bounded by pattern count)
	for i := 1; i < len(filtered); i++ {
		for j := i; j > 0 && less(filtered[j], filtered[j-1]); j-- {
			filtered[j], filtered[j-1] = filtered[j-1], filtered[j]
		}
	}

	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered
}
