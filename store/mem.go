package store

// In-memory stores.  Tests use these; the daemon uses Bolt and
// Stats.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mem is an in-memory VarStore and LogStore.
type Mem struct {
	sync.Mutex

	vars map[string]interface{}
	logs map[int64][]LogEntry
}

// NewMem creates an empty Mem.
func NewMem() *Mem {
	return &Mem{
		vars: make(map[string]interface{}),
		logs: make(map[int64][]LogEntry),
	}
}

func memKey(groupID int64, scope, name string, userID int64) string {
	if scope == "user" {
		return fmt.Sprintf("%d/user/%d/%s", groupID, userID, name)
	}
	return fmt.Sprintf("%d/group/%s", groupID, name)
}

func (s *Mem) ReadVar(_ context.Context, groupID int64, scope, name string, userID int64) (interface{}, error) {
	s.Lock()
	defer s.Unlock()
	return s.vars[memKey(groupID, scope, name, userID)], nil
}

func (s *Mem) WriteVar(_ context.Context, groupID int64, scope, name string, value interface{}, userID int64) error {
	s.Lock()
	defer s.Unlock()
	key := memKey(groupID, scope, name, userID)
	if value == nil {
		delete(s.vars, key)
		return nil
	}
	s.vars[key] = value
	return nil
}

func (s *Mem) DeleteVar(_ context.Context, groupID int64, scope, name string, userID int64) error {
	s.Lock()
	defer s.Unlock()
	delete(s.vars, memKey(groupID, scope, name, userID))
	return nil
}

func (s *Mem) RecordLog(_ context.Context, groupID int64, text, tag string) error {
	s.Lock()
	defer s.Unlock()
	entries := append(s.logs[groupID], LogEntry{Text: text, Tag: tag, At: time.Now().UTC()})
	if len(entries) > MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries:]
	}
	s.logs[groupID] = entries
	return nil
}

func (s *Mem) Logs(_ context.Context, groupID int64, limit int) ([]LogEntry, error) {
	s.Lock()
	defer s.Unlock()
	entries := s.logs[groupID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	acc := make([]LogEntry, len(entries))
	copy(acc, entries)
	return acc, nil
}

type memEvent struct {
	groupID int64
	userID  int64
	tag     string
	at      time.Time
}

// MemStats is an in-memory StatsStore.
type MemStats struct {
	sync.Mutex

	events []memEvent
}

// NewMemStats creates an empty MemStats.
func NewMemStats() *MemStats {
	return &MemStats{}
}

func (s *MemStats) Record(_ context.Context, groupID, userID int64, tag string, at time.Time) error {
	s.Lock()
	defer s.Unlock()
	s.events = append(s.events, memEvent{groupID: groupID, userID: userID, tag: tag, at: at})
	return nil
}

func (s *MemStats) Count(_ context.Context, groupID int64, kind string, window time.Duration, userID int64) (int, error) {
	tags, have := statTags[kind]
	if !have {
		return 0, fmt.Errorf("unknown stat kind %q", kind)
	}
	since := time.Now().Add(-window)

	s.Lock()
	defer s.Unlock()
	n := 0
	for _, e := range s.events {
		if e.groupID != groupID || e.at.Before(since) {
			continue
		}
		if userID != 0 && e.userID != userID {
			continue
		}
		for _, tag := range tags {
			if e.tag == tag {
				n++
				break
			}
		}
	}
	return n, nil
}
