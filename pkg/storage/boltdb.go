package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/orbiter/pkg/log"
	"github.com/cuemby/orbiter/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketProfiles          = []byte("profiles")
	bucketHistoryExecutions = []byte("history_executions")
	bucketBaselines         = []byte("baselines")
)

// baselineRecord is the persisted shape of a baseline's mean/stddev/n.
type baselineRecord struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	N      int64   `json:"n"`
}

// BoltStore implements capability.Persistence using BoltDB. Writes are
// fire-and-forget: failures are logged and swallowed rather than returned,
// since persistence is best-effort (spec §6).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store rooted at dataDir/orbiter.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "orbiter.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketProfiles, bucketHistoryExecutions, bucketBaselines} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) logFailure(op string, err error) {
	if err == nil {
		return
	}
	log.WithComponent("storage").Warn().Err(err).Str("op", op).Msg("persistence write failed")
}

// SaveProfile persists a resource profile under /profiles/<jobClass>.
func (s *BoltStore) SaveProfile(ctx context.Context, profile types.ResourceProfile) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return b.Put([]byte(profile.JobClass), data)
	})
	s.logFailure("SaveProfile", err)
	return nil
}

// LoadProfile loads the resource profile for a job class.
func (s *BoltStore) LoadProfile(ctx context.Context, jobClass string) (types.ResourceProfile, bool, error) {
	var profile types.ResourceProfile
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		data := b.Get([]byte(jobClass))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return types.ResourceProfile{}, false, fmt.Errorf("load profile %s: %w", jobClass, err)
	}
	return profile, found, nil
}

// ListProfiles returns every persisted resource profile.
func (s *BoltStore) ListProfiles(ctx context.Context) ([]types.ResourceProfile, error) {
	var profiles []types.ResourceProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		return b.ForEach(func(k, v []byte) error {
			var profile types.ResourceProfile
			if err := json.Unmarshal(v, &profile); err != nil {
				return err
			}
			profiles = append(profiles, profile)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// AppendExecution persists a plan execution record under
// /history/executions/<t>.
func (s *BoltStore) AppendExecution(ctx context.Context, t time.Time, record types.ExecutionRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistoryExecutions)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(executionKey(t), data)
	})
	s.logFailure("AppendExecution", err)
	return nil
}

// ListExecutions returns the most recent limit execution records, newest
// first, bounded by limit (0 means unbounded).
func (s *BoltStore) ListExecutions(ctx context.Context, limit int) ([]types.ExecutionRecord, error) {
	var records []types.ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistoryExecutions)
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var record types.ExecutionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return records, nil
}

// SaveBaseline persists a metric's rolling mean/stddev/sample-count under
// /baselines/<metric>.
func (s *BoltStore) SaveBaseline(ctx context.Context, metric string, mean, stddev float64, n int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBaselines)
		data, err := json.Marshal(baselineRecord{Mean: mean, StdDev: stddev, N: n})
		if err != nil {
			return err
		}
		return b.Put([]byte(metric), data)
	})
	s.logFailure("SaveBaseline", err)
	return nil
}

// LoadBaseline loads a metric's baseline statistics.
func (s *BoltStore) LoadBaseline(ctx context.Context, metric string) (mean, stddev float64, n int64, found bool, err error) {
	viewErr := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBaselines)
		data := b.Get([]byte(metric))
		if data == nil {
			return nil
		}
		var rec baselineRecord
		if uerr := json.Unmarshal(data, &rec); uerr != nil {
			return uerr
		}
		mean, stddev, n, found = rec.Mean, rec.StdDev, rec.N, true
		return nil
	})
	if viewErr != nil {
		return 0, 0, 0, false, fmt.Errorf("load baseline %s: %w", metric, viewErr)
	}
	return mean, stddev, n, found, nil
}

// executionKey is a zero-padded nanosecond Unix timestamp so bucket keys
// sort lexically in chronological order for cursor-based range scans.
func executionKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}
