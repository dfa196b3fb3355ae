package engine

// Action adapters.  Each adapter wraps one platform or store call;
// the registry is a static table keyed by lower-cased name,
// populated at startup.  An adapter returns a *interp.RuntimeError
// for a misuse (the rule dies) and any other error for a platform
// failure (logged by the caller, the rule continues).

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/interp"
	"github.com/groupwarden/groupwarden/lang"
)

// errStop signals the stop() action.
var errStop = errors.New("stop")

// Invocation is one action call inside a rule.
type Invocation struct {
	Rule  *Rule
	Event *chat.Event
	Args  []interp.Value
	Line  int

	run *run
}

func (inv *Invocation) arg(i int) interp.Value {
	return argOrNull(inv.Args, i)
}

// ActionFunc is an action adapter.
type ActionFunc func(ctx context.Context, ex *Executor, inv *Invocation) error

// Actions maps lower-cased action names to adapters.
type Actions map[string]ActionFunc

// Register adds an action.
func (as Actions) Register(name string, f ActionFunc) {
	as[strings.ToLower(name)] = f
}

// StdActions returns the standard action table.
func StdActions() Actions {
	as := make(Actions)
	as.Register("reply", actionReply)
	as.Register("send_message", actionSendMessage)
	as.Register("delete_message", actionDeleteMessage)
	as.Register("ban_user", actionBanUser)
	as.Register("kick_user", actionKickUser)
	as.Register("mute_user", actionMuteUser)
	as.Register("unmute_user", actionUnmuteUser)
	as.Register("set_var", actionSetVar)
	as.Register("log", actionLog)
	as.Register("start_verification", actionStartVerification)
	as.Register("schedule_action", actionScheduleAction)
	as.Register("stop", actionStop)
	return as
}

func needArgs(inv *Invocation, min, max int) error {
	if len(inv.Args) < min || (max >= 0 && len(inv.Args) > max) {
		return interp.Errf(inv.Line, "wrong number of arguments for action")
	}
	return nil
}

func actionReply(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 1, 1); err != nil {
		return err
	}
	if inv.Event.Message == nil {
		return nil
	}
	return ex.Client.Reply(ctx, inv.Event.Message, inv.Args[0].Display())
}

func actionSendMessage(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 1, 1); err != nil {
		return err
	}
	return ex.Client.SendMessage(ctx, inv.Event.GroupID, inv.Args[0].Display())
}

func actionDeleteMessage(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 0); err != nil {
		return err
	}
	if inv.Event.Message == nil {
		return nil
	}
	return ex.Client.Delete(ctx, inv.Event.Message)
}

func actionBanUser(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 2); err != nil {
		return err
	}
	target, err := TargetUser(inv.Event, inv.arg(0))
	if err != nil {
		return err
	}
	reason := ""
	if len(inv.Args) >= 2 {
		reason = inv.Args[1].Display()
	}
	return ex.Client.Ban(ctx, inv.Event.GroupID, target, reason)
}

func actionKickUser(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 1); err != nil {
		return err
	}
	target, err := TargetUser(inv.Event, inv.arg(0))
	if err != nil {
		return err
	}
	return ex.Client.Kick(ctx, inv.Event.GroupID, target)
}

func actionMuteUser(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 2); err != nil {
		return err
	}
	target, err := TargetUser(inv.Event, inv.arg(1))
	if err != nil {
		return err
	}
	var until time.Time
	if d := ParseDuration(inv.arg(0).Display()); d > 0 {
		until = time.Now().Add(d)
	}
	return ex.Client.Restrict(ctx, inv.Event.GroupID, target, until)
}

func actionUnmuteUser(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 1); err != nil {
		return err
	}
	target, err := TargetUser(inv.Event, inv.arg(0))
	if err != nil {
		return err
	}
	return ex.Client.Unrestrict(ctx, inv.Event.GroupID, target)
}

// actionSetVar is the only write path to persistent variables:
// set_var("scope.name", value, user_id?).  A null value deletes the
// variable.
func actionSetVar(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 2, 3); err != nil {
		return err
	}

	r := inv.run
	scope, name, userID, err := r.varAddress(inv.Args[0], inv.arg(2))
	if err != nil {
		return err
	}
	if scope == "user" && userID == 0 {
		// No user to attach the variable to (scheduled event):
		// drop the write.
		ex.logger().Warn("set_var dropped: no target user",
			"rule", inv.Rule.ID, "group", inv.Event.GroupID, "var", inv.Args[0].Display())
		return nil
	}

	value := inv.Args[1]
	if value.IsNull() {
		return ex.Vars.DeleteVar(ctx, inv.Event.GroupID, scope, name, userID)
	}
	return ex.Vars.WriteVar(ctx, inv.Event.GroupID, scope, name, value.ToGo(), userID)
}

func actionLog(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 1, 2); err != nil {
		return err
	}
	tag := ""
	if len(inv.Args) >= 2 {
		tag = inv.Args[1].Display()
	}
	return ex.Logs.RecordLog(ctx, inv.Event.GroupID, inv.Args[0].Display(), tag)
}

func actionStartVerification(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 1); err != nil {
		return err
	}
	target, err := TargetUser(inv.Event, inv.arg(0))
	if err != nil {
		return err
	}
	return ex.Client.StartVerification(ctx, inv.Event.GroupID, target)
}

func actionStop(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 0, 0); err != nil {
		return err
	}
	return errStop
}

// actionScheduleAction parses its second argument as a single action
// call and runs it after the given delay with the same group and
// user context: schedule_action("10m", "unmute_user(12345)").
func actionScheduleAction(ctx context.Context, ex *Executor, inv *Invocation) error {
	if err := needArgs(inv, 2, 2); err != nil {
		return err
	}

	d := ParseDuration(inv.Args[0].Display())
	if d <= 0 {
		return interp.Errf(inv.Line, "bad duration '%s'", inv.Args[0].Display())
	}

	src := inv.Args[1].Display()
	call, err := parseActionCall(src)
	if err != nil {
		return interp.Errf(inv.Line, "bad scheduled action: %s", err.Error())
	}
	name := strings.ToLower(call.Name)
	action, have := ex.Actions[name]
	if !have || name == "schedule_action" || name == "stop" {
		return interp.Errf(inv.Line, "unknown action '%s'", call.Name)
	}

	// Evaluate the arguments now; the deferred call sees their
	// current values, not the expressions.
	args := make([]interp.Value, len(call.Args))
	for i, arg := range call.Args {
		v, err := inv.run.eval.Eval(ctx, arg)
		if err != nil {
			return err
		}
		args[i] = v
	}

	later := &Invocation{
		Rule:  inv.Rule,
		Event: syntheticEvent(inv.Event),
		Args:  args,
		Line:  inv.Line,
		run:   inv.run,
	}

	ex.delayer().After(d, func(fireCtx context.Context) {
		if err := action(fireCtx, ex, later); err != nil && err != errStop {
			ex.logger().Warn("scheduled action failed",
				"action", call.Name,
				"rule", inv.Rule.ID,
				"group", later.Event.GroupID,
				"err", err)
		}
	})
	return nil
}

// syntheticEvent keeps only the group and user of the originating
// event; the message is gone by the time a deferred action fires.
func syntheticEvent(ev *chat.Event) *chat.Event {
	return &chat.Event{
		Tag:     ev.Tag,
		GroupID: ev.GroupID,
		User:    ev.User,
		At:      time.Now().UTC(),
	}
}

// parseActionCall parses "name(arg, ...)" as an expression and
// insists on a bare call.
func parseActionCall(src string) (*lang.Call, error) {
	wrapped := "WHEN message THEN { " + src + "; } END"
	rule, err := lang.Parse(wrapped)
	if err != nil {
		return nil, err
	}
	if len(rule.Body.Stmts) != 1 {
		return nil, fmt.Errorf("not a single action call")
	}
	es, is := rule.Body.Stmts[0].(*lang.ExprStmt)
	if !is {
		return nil, fmt.Errorf("not an action call")
	}
	call, is := es.X.(*lang.Call)
	if !is {
		return nil, fmt.Errorf("not an action call")
	}
	return call, nil
}

var durationRe = regexp.MustCompile(`^(\d+)\s*(d|h|m|s)$`)

// ParseDuration reads "30s", "10m", "2h", "1d".  Zero or anything
// unparsable comes back as 0, which mute_user treats as permanent and
// schedule_action rejects as a bad duration.
func ParseDuration(s string) time.Duration {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour
	case "h":
		return time.Duration(n) * time.Hour
	case "m":
		return time.Duration(n) * time.Minute
	}
	return time.Duration(n) * time.Second
}
