package dispatch

// Media-group aggregation.  Platform media albums arrive as several
// atomic photo/video messages sharing a media_group_id.  The first
// one arms a one-shot timer; the rest pile onto the entry.  When the
// timer fires, the entry is removed under the lock (so the
// synthesized media_group event is emitted at most once per id) and
// dispatched.

import (
	"time"

	"github.com/google/uuid"

	"github.com/groupwarden/groupwarden/chat"
)

type aggEntry struct {
	id        string
	groupID   int64
	user      *chat.User
	messages  []*chat.Message
	firstSeen time.Time

	ctl chan bool
}

func (d *Dispatcher) aggregate(ev *chat.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := ev.Message.MediaGroupID
	if e, have := d.agg[id]; have {
		e.messages = append(e.messages, ev.Message)
		return
	}

	e := &aggEntry{
		id:        id,
		groupID:   ev.GroupID,
		user:      ev.User,
		messages:  []*chat.Message{ev.Message},
		firstSeen: ev.At,
		ctl:       make(chan bool),
	}
	d.agg[id] = e

	delay := d.AggregationDelay
	if delay <= 0 {
		delay = DefaultAggregationDelay
	}

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
			// Entry removal happens in Shutdown.
		case <-e.ctl:
			// Cancelled; entry already removed.
		case <-timer.C:
			d.fireAggregate(id)
		}
	}()
}

// fireAggregate removes the aggregator entry and dispatches the
// synthesized media_group event.  Removal under the lock makes the
// emit at-most-once even if a timer races shutdown.
func (d *Dispatcher) fireAggregate(id string) {
	d.mu.Lock()
	e, have := d.agg[id]
	if have {
		delete(d.agg, id)
	}
	closed := d.closed
	d.mu.Unlock()

	if !have || closed {
		return
	}

	ev := &chat.Event{
		ID:         uuid.NewString(),
		Tag:        "media_group",
		GroupID:    e.groupID,
		User:       e.user,
		Message:    e.messages[0],
		MediaGroup: e.messages,
		At:         time.Now().UTC(),
	}

	d.recordStat(ev)
	d.spawn(ev)
}
