// Package dispatch receives platform events, aggregates media
// groups, keeps the per-group parsed-rule cache, fires cron
// schedules, and drives the executor over each group's rules in
// priority order.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/engine"
	"github.com/groupwarden/groupwarden/store"
)

var (
	// DefaultAggregationDelay is the wait after the first message
	// of a media group before the synthesized event fires.
	DefaultAggregationDelay = 1500 * time.Millisecond

	// DefaultGrace bounds the wait for running event tasks during
	// shutdown.
	DefaultGrace = 5 * time.Second
)

// RuleSource provides rule records.  The daemon backs it with rule
// files; a database works the same way.
type RuleSource interface {
	// GroupRules returns all rule records of a group, in any
	// order.
	GroupRules(ctx context.Context, groupID int64) ([]*engine.Rule, error)

	// Groups lists the group ids that have rules; used to install
	// cron schedules.
	Groups(ctx context.Context) ([]int64, error)
}

// RuleToggler is implemented by rule sources that can flip a rule's
// active flag (the /togglerule command).
type RuleToggler interface {
	ToggleRule(ctx context.Context, groupID, ruleID int64) (bool, error)
}

// Dispatcher owns the event loop state.  The rule cache and the
// media-group aggregator are only touched under mu; executor tasks
// run outside it.
type Dispatcher struct {
	Exec   *engine.Executor
	Rules  RuleSource
	Stats  store.StatsStore
	Logger *log.Logger

	AggregationDelay time.Duration
	Grace            time.Duration

	mu     sync.Mutex
	cache  map[int64][]*engine.Rule
	agg    map[string]*aggEntry
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	schedMu     sync.Mutex
	schedCancel context.CancelFunc
	schedWG     sync.WaitGroup

	wg sync.WaitGroup
}

// New makes a Dispatcher.  Call Start before dispatching.
func New(exec *engine.Executor, rules RuleSource) *Dispatcher {
	return &Dispatcher{
		Exec:             exec,
		Rules:            rules,
		Logger:           log.Default(),
		AggregationDelay: DefaultAggregationDelay,
		Grace:            DefaultGrace,
		cache:            make(map[int64][]*engine.Rule),
		agg:              make(map[string]*aggEntry),
	}
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Start installs cron schedules and arms the dispatcher.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	// schedule_action timers ride on the dispatcher's lifetime.
	d.Exec.Delay = &dispatcherDelayer{d: d}

	d.installSchedules()
	return nil
}

// Shutdown stops accepting events, drops pending aggregation
// timers, and waits the bounded grace period for running tasks.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for id, e := range d.agg {
		close(e.ctl)
		delete(d.agg, id)
	}
	d.mu.Unlock()

	d.schedMu.Lock()
	if d.schedCancel != nil {
		d.schedCancel()
	}
	d.schedMu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}

	grace := d.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.schedWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Canonicalize fills the event's tag from its payload: a message
// starting with '/' is a command; media kinds keep their kind as the
// tag.
func Canonicalize(ev *chat.Event) {
	if ev.Tag != "" {
		return
	}
	if m := ev.Message; m != nil {
		switch m.Kind {
		case "photo", "video", "document":
			ev.Tag = m.Kind
			return
		}
		if len(m.Text) > 0 && m.Text[0] == '/' {
			ev.Tag = "command"
			return
		}
	}
	ev.Tag = "message"
}

// Dispatch accepts one atomic platform event.  It returns
// immediately; rule execution happens on its own task.
func (d *Dispatcher) Dispatch(ev *chat.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	Canonicalize(ev)
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	d.recordStat(ev)

	// Media-group members wait for aggregation instead of
	// dispatching on their own.
	if m := ev.Message; m != nil && m.MediaGroupID != "" &&
		(ev.Tag == "photo" || ev.Tag == "video") {
		d.aggregate(ev)
		return
	}

	d.spawn(ev)
}

func (d *Dispatcher) recordStat(ev *chat.Event) {
	if d.Stats == nil {
		return
	}
	var userID int64
	if ev.User != nil {
		userID = ev.User.ID
	}
	if err := d.Stats.Record(context.Background(), ev.GroupID, userID, ev.Tag, ev.At); err != nil {
		d.logger().Warn("stats record failed", "group", ev.GroupID, "err", err)
	}
}

// spawn runs one event task to completion.
func (d *Dispatcher) spawn(ev *chat.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			// Nothing may escape the per-event task boundary.
			if x := recover(); x != nil {
				d.logger().Error("event task panicked", "event", ev.ID, "panic", x)
			}
		}()
		d.process(d.ctx, ev)
	}()
}

func (d *Dispatcher) process(ctx context.Context, ev *chat.Event) {
	if ev.Tag == "command" && d.handleAdmin(ctx, ev) {
		return
	}

	rules, err := d.groupRules(ctx, ev.GroupID)
	if err != nil {
		// Database unreachable: skip the group for this event and
		// retry on the next one.
		d.logger().Error("rule load failed", "group", ev.GroupID, "err", err)
		return
	}

	for _, rule := range rules {
		if !rule.Active || !rule.Parsed.Triggered(ev.Tag) {
			continue
		}
		if d.Exec.Execute(ctx, rule, ev) == engine.Stopped {
			break
		}
	}
}

// groupRules returns the group's parsed rules ordered by priority,
// loading and caching them on first use.  Rules that fail to parse
// are logged once and excluded.
func (d *Dispatcher) groupRules(ctx context.Context, groupID int64) ([]*engine.Rule, error) {
	d.mu.Lock()
	if rules, have := d.cache[groupID]; have {
		d.mu.Unlock()
		return rules, nil
	}
	d.mu.Unlock()

	records, err := d.Rules.GroupRules(ctx, groupID)
	if err != nil {
		return nil, err
	}

	rules := make([]*engine.Rule, 0, len(records))
	for _, rule := range records {
		if rule.Parsed == nil {
			if err := rule.Compile(); err != nil {
				d.logger().Error("rule does not parse",
					"group", groupID, "rule", rule.ID, "err", err)
				continue
			}
		}
		rules = append(rules, rule)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	d.mu.Lock()
	d.cache[groupID] = rules
	d.mu.Unlock()
	return rules, nil
}

// Invalidate drops a group's cached rules; id 0 drops every group.
// Invalidation is idempotent.  Cron schedules are reinstalled.
func (d *Dispatcher) Invalidate(groupID int64) {
	d.mu.Lock()
	if groupID == 0 {
		d.cache = make(map[int64][]*engine.Rule)
	} else {
		delete(d.cache, groupID)
	}
	d.mu.Unlock()

	d.installSchedules()
}

// dispatcherDelayer binds engine.Delayer to the dispatcher's
// lifetime: deferred actions are dropped at shutdown.
type dispatcherDelayer struct {
	d *Dispatcher
}

func (dd *dispatcherDelayer) After(delay time.Duration, f func(ctx context.Context)) {
	t := time.NewTimer(delay)
	dd.d.wg.Add(1)
	go func() {
		defer dd.d.wg.Done()
		defer t.Stop()
		select {
		case <-dd.d.ctx.Done():
		case <-t.C:
			f(dd.d.ctx)
		}
	}()
}
