// Package storage provides an optional local history archive for the
// dashboard. It records the signals and notifications the client observed
// using BoltDB, so an operator can inspect past activity offline. The live
// stream client itself never reads from it.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"tradewatch/internal/notify"
	"tradewatch/internal/signal"
)

const (
	signalsBucket       = "signals"       // Bucket for observed signal records
	notificationsBucket = "notifications" // Bucket for dispatched notifications
)

// Store is a BoltDB-backed archive of observed dashboard activity.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the archive database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "tradewatch-history.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(signalsBucket)); err != nil {
			return fmt.Errorf("create signals bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(notificationsBucket)); err != nil {
			return fmt.Errorf("create notifications bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreSignal archives one signal record. Re-observing the same record (same
// id and timestamp) overwrites the previous copy, so the archive keeps the
// latest payload per observation.
func (s *Store) StoreSignal(rec signal.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(signalsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal signal: %w", err)
		}

		key := fmt.Sprintf("%020d_%d", rec.CreatedAt.UnixNano(), rec.ID)
		return b.Put([]byte(key), data)
	})
}

// StoreNotification archives one dispatched notification.
func (s *Store) StoreNotification(n notify.Notification) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(notificationsBucket))

		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := fmt.Sprintf("%020d_%d", n.CreatedAt.UnixNano(), seq)
		return b.Put([]byte(key), data)
	})
}

// SignalsRange retrieves archived signals within a time range, oldest first.
// The range is inclusive of both start and end.
func (s *Store) SignalsRange(start, end time.Time) ([]signal.Record, error) {
	var recs []signal.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(signalsBucket))
		c := b.Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d_~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && string(k) <= string(endKey); k, v = c.Next() {
			var rec signal.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			recs = append(recs, rec)
		}
		return nil
	})

	return recs, err
}

// RecentNotifications retrieves up to limit notifications, newest first.
func (s *Store) RecentNotifications(limit int) ([]notify.Notification, error) {
	var nots []notify.Notification

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(notificationsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(nots) < limit; k, v = c.Prev() {
			var n notify.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			nots = append(nots, n)
		}
		return nil
	})

	return nots, err
}
