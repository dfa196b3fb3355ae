package store

// Bolt keeps persistent variables and action logs in a bbolt file:
// one bucket per group per concern ("vars:<group>", "log:<group>").
// Variable values are JSON; log entries are JSON keyed by the
// bucket sequence so FIFO trimming is a cursor walk.

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a VarStore and LogStore over a single bbolt file.
type Bolt struct {
	Debug bool

	filename string
	db       *bolt.DB
}

// NewBolt makes a Bolt for the given file.  Call Open before use.
func NewBolt(filename string) *Bolt {
	return &Bolt{
		filename: filename,
	}
}

// Open opens the underlying database file.
func (s *Bolt) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}
	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *Bolt) Close(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Bolt) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("Bolt "+format, args...)
	}
}

func varsBucket(groupID int64) []byte {
	return []byte(fmt.Sprintf("vars:%d", groupID))
}

func logBucket(groupID int64) []byte {
	return []byte(fmt.Sprintf("log:%d", groupID))
}

// varKey addresses a variable inside its group bucket.  Group-scoped
// variables have no user component.
func varKey(scope, name string, userID int64) []byte {
	if scope == "user" {
		return []byte(fmt.Sprintf("user/%d/%s", userID, name))
	}
	return []byte("group/" + name)
}

func (s *Bolt) ReadVar(ctx context.Context, groupID int64, scope, name string, userID int64) (interface{}, error) {
	var value interface{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(varsBucket(groupID))
		if b == nil {
			return nil
		}
		bs := b.Get(varKey(scope, name, userID))
		if bs == nil {
			return nil
		}
		return json.Unmarshal(bs, &value)
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Bolt) WriteVar(ctx context.Context, groupID int64, scope, name string, value interface{}, userID int64) error {
	if value == nil {
		return s.DeleteVar(ctx, groupID, scope, name, userID)
	}
	bs, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.logf("WriteVar %d %s.%s = %s", groupID, scope, name, bs)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(varsBucket(groupID))
		if err != nil {
			return err
		}
		return b.Put(varKey(scope, name, userID), bs)
	})
}

func (s *Bolt) DeleteVar(ctx context.Context, groupID int64, scope, name string, userID int64) error {
	s.logf("DeleteVar %d %s.%s", groupID, scope, name)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(varsBucket(groupID))
		if b == nil {
			return nil
		}
		return b.Delete(varKey(scope, name, userID))
	})
}

func (s *Bolt) RecordLog(ctx context.Context, groupID int64, text, tag string) error {
	entry := LogEntry{
		Text: text,
		Tag:  tag,
		At:   time.Now().UTC(),
	}
	bs, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(logBucket(groupID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, bs); err != nil {
			return err
		}

		// FIFO trim.  Stats aren't reliable mid-transaction, so
		// count with a cursor; the bucket never exceeds
		// MaxLogEntries+1 keys here.
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		c = b.Cursor()
		for k, _ := c.First(); k != nil && n > MaxLogEntries; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			n--
		}
		return nil
	})
}

func (s *Bolt) Logs(ctx context.Context, groupID int64, limit int) ([]LogEntry, error) {
	acc := make([]LogEntry, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(logBucket(groupID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		skip := 0
		if n := b.Stats().KeyN; limit > 0 && n > limit {
			skip = n - limit
		}
		for k, bs := c.First(); k != nil; k, bs = c.Next() {
			if skip > 0 {
				skip--
				continue
			}
			var entry LogEntry
			if err := json.Unmarshal(bs, &entry); err != nil {
				return err
			}
			acc = append(acc, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
