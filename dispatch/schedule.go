package dispatch

// Cron schedules.  Every schedule("<cron>") rule gets its own loop
// that sleeps until the expression's next firing and executes the
// rule with a synthetic schedule event (no user).  Installation
// happens at Start and again on every rule-cache invalidation; the
// previous generation of loops is cancelled first.

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/engine"
)

func (d *Dispatcher) installSchedules() {
	if d.ctx == nil {
		return
	}

	d.schedMu.Lock()
	defer d.schedMu.Unlock()

	if d.schedCancel != nil {
		d.schedCancel()
		d.schedWG.Wait()
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.schedCancel = cancel

	groups, err := d.Rules.Groups(ctx)
	if err != nil {
		d.logger().Error("schedule install: group list failed", "err", err)
		return
	}

	n := 0
	for _, groupID := range groups {
		rules, err := d.groupRules(ctx, groupID)
		if err != nil {
			d.logger().Error("schedule install: rule load failed",
				"group", groupID, "err", err)
			continue
		}
		for _, rule := range rules {
			if !rule.Active || rule.Parsed.Schedule == "" {
				continue
			}
			expr, err := cronexpr.Parse(rule.Parsed.Schedule)
			if err != nil {
				// The parser validated this already.
				d.logger().Error("bad cron expression",
					"group", groupID, "rule", rule.ID, "err", err)
				continue
			}
			n++
			d.schedWG.Add(1)
			go d.runSchedule(ctx, groupID, rule, expr)
		}
	}
	if n > 0 {
		d.logger().Info("schedules installed", "count", n)
	}
}

func (d *Dispatcher) runSchedule(ctx context.Context, groupID int64, rule *engine.Rule, expr *cronexpr.Expression) {
	defer d.schedWG.Done()

	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		ev := &chat.Event{
			ID:      uuid.NewString(),
			Tag:     "schedule",
			GroupID: groupID,
			At:      time.Now().UTC(),
		}
		if d.Exec.Execute(ctx, rule, ev) == engine.Errored {
			d.logger().Warn("scheduled rule errored",
				"group", groupID, "rule", rule.ID)
		}
	}
}
