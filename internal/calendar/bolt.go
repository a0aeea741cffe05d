package calendar

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore persists calendars in a bbolt file. Each vessel/kind pair owns one bucket
// keyed by date with the day's events JSON-encoded as the value.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the calendar database.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open calendar db %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func bucketName(channel string, kind Kind) []byte {
	return []byte(channel + "/" + string(kind))
}

// Save replaces the stored calendar for a vessel and kind.
func (s *BoltStore) Save(channel string, kind Kind, cal *Calendar) error {
	name := bucketName(channel, kind)
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
		}
		b, err := tx.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		for d, evs := range cal.days {
			data, err := json.Marshal(evs)
			if err != nil {
				return fmt.Errorf("encode %s: %w", d, err)
			}
			if err := b.Put([]byte(d), data); err != nil {
				return fmt.Errorf("put %s: %w", d, err)
			}
		}
		return nil
	})
}

// Load returns the stored calendar for a vessel and kind. A missing bucket yields an
// empty calendar.
func (s *BoltStore) Load(channel string, kind Kind) (*Calendar, error) {
	cal := New()
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(channel, kind))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var evs []Event
			if err := json.Unmarshal(v, &evs); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if len(evs) > 0 {
				cal.days[string(k)] = evs
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cal, nil
}
