package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const bucketKeyPrefix = "stats:bucket:"

// BucketUsage holds the running counters for a single bucket
type BucketUsage struct {
	Bucket      string `json:"bucket"`
	ObjectCount int64  `json:"object_count"`
	TotalBytes  int64  `json:"total_bytes"`
}

// Tracker keeps per-bucket usage counters in an embedded Badger store so
// usage reporting survives restarts without rescanning the data directory.
type Tracker struct {
	db *badger.DB
	mu sync.Mutex
}

// NewTracker opens (or creates) the usage database at path
func NewTracker(path string) (*Tracker, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	logrus.WithField("path", path).Info("Usage stats store initialized")
	return &Tracker{db: db}, nil
}

// RecordPut adds one object of the given size to the bucket's counters.
// sizeDelta may be negative when an overwrite shrinks an object; countDelta
// is zero for overwrites.
func (t *Tracker) RecordPut(bucket string, countDelta, sizeDelta int64) error {
	return t.adjust(bucket, countDelta, sizeDelta)
}

// RecordDelete subtracts one object of the given size from the bucket's
// counters.
func (t *Tracker) RecordDelete(bucket string, size int64) error {
	return t.adjust(bucket, -1, -size)
}

// DropBucket removes the counters for a bucket entirely
func (t *Tracker) DropBucket(bucket string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(bucketKeyPrefix + bucket))
	})
}

// Get returns the usage for one bucket. Buckets that were never written
// report zero usage.
func (t *Tracker) Get(bucket string) (BucketUsage, error) {
	usage := BucketUsage{Bucket: bucket}

	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(bucketKeyPrefix + bucket))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &usage)
		})
	})
	if err != nil {
		return BucketUsage{}, fmt.Errorf("failed to read bucket usage: %w", err)
	}
	return usage, nil
}

// All returns usage for every tracked bucket, sorted by bucket name
func (t *Tracker) All() ([]BucketUsage, error) {
	var usages []BucketUsage

	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(bucketKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var usage BucketUsage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &usage)
			}); err != nil {
				return err
			}
			usages = append(usages, usage)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bucket usage: %w", err)
	}

	sort.Slice(usages, func(i, j int) bool { return usages[i].Bucket < usages[j].Bucket })
	return usages, nil
}

// Close closes the underlying database
func (t *Tracker) Close() error {
	return t.db.Close()
}

func (t *Tracker) adjust(bucket string, countDelta, sizeDelta int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := []byte(bucketKeyPrefix + bucket)
	err := t.db.Update(func(txn *badger.Txn) error {
		usage := BucketUsage{Bucket: bucket}

		item, err := txn.Get(key)
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &usage)
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		usage.ObjectCount += countDelta
		usage.TotalBytes += sizeDelta
		if usage.ObjectCount < 0 {
			usage.ObjectCount = 0
		}
		if usage.TotalBytes < 0 {
			usage.TotalBytes = 0
		}

		encoded, err := json.Marshal(usage)
		if err != nil {
			return err
		}
		return txn.Set(key, encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to update bucket usage: %w", err)
	}
	return nil
}
