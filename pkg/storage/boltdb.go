package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cuemby/appevent/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketEvents         = []byte("events")
	bucketUserIDs        = []byte("user_ids")
	bucketUserProperties = []byte("user_properties")
	bucketProcessors     = []byte("processors")
	bucketCustomParams   = []byte("custom_params")
	bucketMeta           = []byte("meta")

	keyEventBytes = []byte("event_bytes")
)

// DBFile is the database file name inside the data directory.
const DBFile = "appevent.db"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db    *bolt.DB
	quota atomic.Int64 // bytes, 0 = unlimited
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketEvents,
			bucketUserIDs,
			bucketUserProperties,
			bucketProcessors,
			bucketCustomParams,
			bucketMeta,
		}

		for _, bucket := range buckets {
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

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// Event operations

// AppendEvent stores ev under the next sequence id and evicts the oldest
// events while the stored total exceeds the quota.
func (s *BoltStore) AppendEvent(ev *types.Event) (int64, int, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to encode event: %w", err)
	}

	var id int64
	var evicted int
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		if err := b.Put(itob(id), data); err != nil {
			return err
		}

		meta := tx.Bucket(bucketMeta)
		total := btoi(meta.Get(keyEventBytes)) + int64(len(data))
		evicted, total, err = evict(b, total, s.quota.Load())
		if err != nil {
			return err
		}
		return meta.Put(keyEventBytes, itob(total))
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to append event: %w", err)
	}

	ev.ID = id
	return id, evicted, nil
}

// evict deletes from the oldest end until total fits quota.
func evict(b *bolt.Bucket, total, quota int64) (int, int64, error) {
	if quota <= 0 {
		return 0, total, nil
	}
	evicted := 0
	c := b.Cursor()
	for k, v := c.First(); k != nil && total > quota; k, v = c.First() {
		total -= int64(len(v))
		if err := c.Delete(); err != nil {
			return evicted, total, err
		}
		evicted++
	}
	return evicted, total, nil
}

// SetQuota changes the byte quota and applies it immediately.
func (s *BoltStore) SetQuota(bytes int64) (int, error) {
	s.quota.Store(bytes)

	var evicted int
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		var total int64
		var err error
		evicted, total, err = evict(tx.Bucket(bucketEvents), btoi(meta.Get(keyEventBytes)), bytes)
		if err != nil {
			return err
		}
		return meta.Put(keyEventBytes, itob(total))
	})
	return evicted, err
}

// ListEvents returns stored events oldest first
func (s *BoltStore) ListEvents() ([]*types.Event, error) {
	var events []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev types.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			ev.ID = btoi(k)
			events = append(events, &ev)
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) CountEvents() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// ClearEvents drops every stored event. The id sequence keeps increasing.
func (s *BoltStore) ClearEvents() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		seq := tx.Bucket(bucketEvents).Sequence()
		if err := tx.DeleteBucket(bucketEvents); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketEvents)
		if err != nil {
			return err
		}
		if err := b.SetSequence(seq); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyEventBytes, itob(0))
	})
}

// User info operations

func (s *BoltStore) put(bucket []byte, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) get(bucket []byte, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		value = string(tx.Bucket(bucket).Get([]byte(key)))
		return nil
	})
	return value, err
}

func (s *BoltStore) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (s *BoltStore) list(bucket []byte) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) SetUserID(name, value string) error {
	return s.put(bucketUserIDs, name, value)
}

// GetUserID returns "" when the name is not set
func (s *BoltStore) GetUserID(name string) (string, error) {
	return s.get(bucketUserIDs, name)
}

func (s *BoltStore) DeleteUserID(name string) error {
	return s.delete(bucketUserIDs, name)
}

func (s *BoltStore) ListUserIDs() (map[string]string, error) {
	return s.list(bucketUserIDs)
}

func (s *BoltStore) SetUserProperty(name, value string) error {
	return s.put(bucketUserProperties, name, value)
}

// GetUserProperty returns "" when the name is not set
func (s *BoltStore) GetUserProperty(name string) (string, error) {
	return s.get(bucketUserProperties, name)
}

func (s *BoltStore) DeleteUserProperty(name string) error {
	return s.delete(bucketUserProperties, name)
}

func (s *BoltStore) ListUserProperties() (map[string]string, error) {
	return s.list(bucketUserProperties)
}

// ClearUserInfo empties both user info tables in one transaction
func (s *BoltStore) ClearUserInfo() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketUserIDs, bucketUserProperties} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Processor operations

func (s *BoltStore) NextProcessorID() (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucketProcessors).NextSequence()
		id = int64(seq)
		return err
	})
	return id, err
}

func (s *BoltStore) SaveProcessor(rec *types.ProcessorRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcessors).Put(itob(rec.ID), data)
	})
}

func (s *BoltStore) DeleteProcessor(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcessors).Delete(itob(id))
	})
}

func (s *BoltStore) ListProcessors() ([]*types.ProcessorRecord, error) {
	var records []*types.ProcessorRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcessors).ForEach(func(k, v []byte) error {
			var rec types.ProcessorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}

// Custom parameter operations

func customKey(runningID, domain, name string) []byte {
	return []byte(strings.Join([]string{runningID, domain, name}, "\x00"))
}

// UpdateCustomParams merges params into the record for (runningID, domain,
// name). The update is rejected as a whole when the merged key count would
// exceed limit.
func (s *BoltStore) UpdateCustomParams(runningID, domain, name string, params map[string]types.Value, limit int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCustomParams)
		key := customKey(runningID, domain, name)

		merged := make(map[string]types.Value)
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &merged); err != nil {
				return fmt.Errorf("failed to decode custom params: %w", err)
			}
		}
		for k, v := range params {
			merged[k] = v
		}
		if limit > 0 && len(merged) > limit {
			return ErrTooManyCustomParams
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// GetCustomParams returns the parameters recorded for exactly (runningID, domain, name).
func (s *BoltStore) GetCustomParams(runningID, domain, name string) (map[string]types.Value, error) {
	params := make(map[string]types.Value)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCustomParams).Get(customKey(runningID, domain, name))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &params)
	})
	return params, err
}

func (s *BoltStore) ClearCustomParams() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketCustomParams); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketCustomParams)
		return err
	})
}
