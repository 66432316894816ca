// Package store persists a rolling window of periodic per-symbol book
// snapshots, the only durable state in the system. Everything else is
// in-memory and rebuilt on restart.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"depthwatch/internal/depth"
)

// SnapshotStore is the embedded ordered key/value abstraction the analytics
// engine reads from. Keys are (symbol, timestamp); values are encoded depth
// records. Any embedded ordered store can satisfy it.
type SnapshotStore interface {
	// Put appends one snapshot for a symbol at ts.
	Put(symbol string, ts time.Time, snap *depth.Encoded) error

	// Scan returns the snapshots for symbol within [from, to], ascending by
	// timestamp.
	Scan(symbol string, from, to time.Time) ([]Record, error)

	// DeleteBefore removes every snapshot older than cutoff across all
	// symbols and returns the number removed.
	DeleteBefore(cutoff time.Time) (int, error)

	Close() error
}

// Record is one stored snapshot with its key timestamp.
type Record struct {
	Timestamp time.Time
	Snapshot  *depth.Encoded
}

// BoltStore implements SnapshotStore on bbolt: one bucket per symbol, keys
// are big-endian unix-nanos so the B+tree iterates in time order. bbolt's
// transaction model gives the single-writer/multi-reader discipline.
type BoltStore struct {
	db  *bolt.DB
	log *logrus.Entry
}

// Open opens (or creates) the store file.
func Open(path string, logger *logrus.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &BoltStore{
		db:  db,
		log: logger.WithField("component", "store"),
	}, nil
}

// Put appends one snapshot for a symbol.
func (s *BoltStore) Put(symbol string, ts time.Time, snap *depth.Encoded) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(symbol))
		if err != nil {
			return err
		}
		return bucket.Put(tsKey(ts), payload)
	})
}

// Scan returns the snapshots for symbol within [from, to], ascending.
func (s *BoltStore) Scan(symbol string, from, to time.Time) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(symbol))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		min, max := tsKey(from), tsKey(to)
		for k, v := c.Seek(min); k != nil && string(k) <= string(max); k, v = c.Next() {
			var snap depth.Encoded
			if err := json.Unmarshal(v, &snap); err != nil {
				s.log.WithError(err).Warn("skipping corrupt snapshot record")
				continue
			}
			records = append(records, Record{
				Timestamp: keyTS(k),
				Snapshot:  &snap,
			})
		}
		return nil
	})
	return records, err
}

// DeleteBefore removes snapshots older than cutoff across all symbols.
func (s *BoltStore) DeleteBefore(cutoff time.Time) (int, error) {
	removed := 0
	limit := tsKey(cutoff)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, bucket *bolt.Bucket) error {
			c := bucket.Cursor()
			for k, _ := c.First(); k != nil && string(k) < string(limit); k, _ = c.First() {
				if err := bucket.Delete(k); err != nil {
					return err
				}
				removed++
			}
			return nil
		})
	})
	return removed, err
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func tsKey(ts time.Time) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(ts.UnixNano()))
	return key[:]
}

func keyTS(key []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(key)))
}
