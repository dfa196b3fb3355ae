package dispatch

// Administrative commands, processed as ordinary command events by a
// built-in handler that runs before any user rule: /rules lists the
// group's rules, /togglerule flips one, /reload_rules drops the
// cache.  Admins only; anything else falls through to user rules.

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/groupwarden/groupwarden/chat"
)

// handleAdmin returns true when the event was an administrative
// command and has been fully handled.
func (d *Dispatcher) handleAdmin(ctx context.Context, ev *chat.Event) bool {
	if ev.Message == nil {
		return false
	}
	fields := strings.Fields(ev.Message.Text)
	if len(fields) == 0 {
		return false
	}
	name := strings.TrimPrefix(fields[0], "/")

	switch name {
	case "rules", "togglerule", "reload_rules":
	default:
		return false
	}

	if !d.isAdmin(ctx, ev) {
		d.logger().Debug("admin command from non-admin",
			"group", ev.GroupID, "command", name)
		return true
	}

	switch name {
	case "rules":
		d.adminListRules(ctx, ev)
	case "togglerule":
		d.adminToggleRule(ctx, ev, fields[1:])
	case "reload_rules":
		d.Invalidate(0)
		d.reply(ctx, ev, "rules reloaded")
	}
	return true
}

func (d *Dispatcher) isAdmin(ctx context.Context, ev *chat.Event) bool {
	if ev.User == nil || d.Exec.Client == nil {
		return false
	}
	member, err := d.Exec.Client.GetChatMember(ctx, ev.GroupID, ev.User.ID)
	if err != nil {
		d.logger().Warn("admin check failed",
			"group", ev.GroupID, "user", ev.User.ID, "err", err)
		return false
	}
	return member.IsAdmin()
}

func (d *Dispatcher) reply(ctx context.Context, ev *chat.Event, text string) {
	if ev.Message == nil {
		return
	}
	if err := d.Exec.Client.Reply(ctx, ev.Message, text); err != nil {
		d.logger().Warn("admin reply failed", "group", ev.GroupID, "err", err)
	}
}

func (d *Dispatcher) adminListRules(ctx context.Context, ev *chat.Event) {
	rules, err := d.groupRules(ctx, ev.GroupID)
	if err != nil {
		d.reply(ctx, ev, "cannot load rules")
		return
	}
	if len(rules) == 0 {
		d.reply(ctx, ev, "no rules")
		return
	}

	var b strings.Builder
	for _, rule := range rules {
		state := "off"
		if rule.Active {
			state = "on"
		}
		fmt.Fprintf(&b, "#%d [%s] p%d %s\n", rule.ID, state, rule.Priority, rule.Name)
	}
	d.reply(ctx, ev, strings.TrimRight(b.String(), "\n"))
}

func (d *Dispatcher) adminToggleRule(ctx context.Context, ev *chat.Event, args []string) {
	if len(args) != 1 {
		d.reply(ctx, ev, "usage: /togglerule <id>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		d.reply(ctx, ev, "usage: /togglerule <id>")
		return
	}

	toggler, is := d.Rules.(RuleToggler)
	if !is {
		d.reply(ctx, ev, "rule source cannot toggle rules")
		return
	}
	active, err := toggler.ToggleRule(ctx, ev.GroupID, id)
	if err != nil {
		d.reply(ctx, ev, fmt.Sprintf("no rule #%d", id))
		return
	}

	d.Invalidate(ev.GroupID)
	state := "disabled"
	if active {
		state = "enabled"
	}
	d.reply(ctx, ev, fmt.Sprintf("rule #%d %s", id, state))
}
