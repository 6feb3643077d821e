// Package runlog keeps the append-only audit log of rebalance runs.
package runlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

const (
	DefaultDir = "./runlog"
	// DefaultSegmentEntries and DefaultMaxSegments keep ten million entries
	// before the WAL drops its oldest segment.
	DefaultSegmentEntries = 1000
	DefaultMaxSegments    = 10000

	runKeyPrefix  = "run_"
	fillKeyPrefix = "fill_"
)

// WALStore persists run records and paper fills in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// Option tunes the WAL layout.
type Option func(*gowal.Config)

// WithSegments sets entries per segment and the number of segments kept.
// Non-positive values keep the defaults.
func WithSegments(entries, segments int) Option {
	return func(c *gowal.Config) {
		if entries > 0 {
			c.SegmentThreshold = entries
		}
		if segments > 0 {
			c.MaxSegments = segments
		}
	}
}

// NewWALStore initializes a WAL-backed run log.
func NewWALStore(dir string, opts ...Option) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "runlog_",
		SegmentThreshold: DefaultSegmentEntries,
		MaxSegments:      DefaultMaxSegments,
		IsInSyncDiskMode: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init run log WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the run record.
func (s *WALStore) Save(record domain.RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("run record id is required")
	}
	return s.append(runKeyPrefix+record.RunID, record)
}

// SaveFill appends a paper fill.
func (s *WALStore) SaveFill(fill domain.PaperFill) error {
	if fill.ClientOrderID == "" {
		return fmt.Errorf("paper fill client order id is required")
	}
	return s.append(fillKeyPrefix+fill.ClientOrderID, fill)
}

func (s *WALStore) append(key string, v any) error {
	if s == nil || s.wal == nil {
		return errors.New("run log is not initialized")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// RecordsAfter returns the run records written after the provided WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]domain.RunRecordEntry, error) {
	var records []domain.RunRecordEntry
	err := s.scan(index, runKeyPrefix, func(idx uint64, payload []byte) error {
		var record domain.RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return errors.Wrap(err, "decode run record")
		}
		records = append(records, domain.RunRecordEntry{Index: idx, Record: record})
		return nil
	})
	return records, err
}

// FillsAfter returns the paper fills written after the provided WAL index.
func (s *WALStore) FillsAfter(index uint64) ([]domain.PaperFillEntry, error) {
	var fills []domain.PaperFillEntry
	err := s.scan(index, fillKeyPrefix, func(idx uint64, payload []byte) error {
		var fill domain.PaperFill
		if err := json.Unmarshal(payload, &fill); err != nil {
			return errors.Wrap(err, "decode paper fill")
		}
		fills = append(fills, domain.PaperFillEntry{Index: idx, Fill: fill})
		return nil
	})
	return fills, err
}

func (s *WALStore) scan(index uint64, prefix string, fn func(idx uint64, payload []byte) error) error {
	if s == nil || s.wal == nil {
		return errors.New("run log is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := fn(idx, payload); err != nil {
			return err
		}
	}

	return nil
}

// Last returns the most recent run record, false if the log holds none.
func (s *WALStore) Last() (domain.RunRecordEntry, bool, error) {
	records, err := s.RecordsAfter(0)
	if err != nil || len(records) == 0 {
		return domain.RunRecordEntry{}, false, err
	}
	return records[len(records)-1], true, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("run log is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
