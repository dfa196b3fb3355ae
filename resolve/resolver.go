// Package resolve turns context-variable paths (user.*, message.*,
// command.*, media_group.*, time.*, user.stats.*, group.stats.*,
// vars.*) into values for the evaluator.  One Resolver serves one
// event dispatch; anything that costs a platform or database call is
// memoized for that event, keyed by the canonical path.
package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/interp"
	"github.com/groupwarden/groupwarden/store"
)

// Resolver resolves paths against one event.
type Resolver struct {
	Event  *chat.Event
	Client chat.Client
	Vars   store.VarStore
	Stats  store.StatsStore

	memo map[string]interp.Value
	cmd  *command
}

// New makes a Resolver for one event dispatch.
func New(ev *chat.Event, client chat.Client, vars store.VarStore, stats store.StatsStore) *Resolver {
	return &Resolver{
		Event:  ev,
		Client: client,
		Vars:   vars,
		Stats:  stats,
		memo:   make(map[string]interp.Value),
	}
}

// EffectiveTarget is the user an unqualified user-scoped access
// applies to: the replied-to message's author when the triggering
// message is a reply, otherwise the triggering user.  Zero when the
// event has neither.
func EffectiveTarget(ev *chat.Event) int64 {
	if ev.Message != nil && ev.Message.ReplyTo != nil && ev.Message.ReplyTo.From != nil {
		return ev.Message.ReplyTo.From.ID
	}
	if ev.User != nil {
		return ev.User.ID
	}
	return 0
}

// Resolve implements interp.Resolver.
func (r *Resolver) Resolve(ctx context.Context, parts []interp.PathPart) (interp.Value, error) {
	if len(parts) == 0 {
		return interp.Null, nil
	}

	switch parts[0].Name {
	case "time":
		return r.resolveTime(parts)
	case "command":
		return r.resolveCommand(parts)
	case "vars":
		return r.resolveVar(ctx, parts)
	case "media_group":
		return r.resolveMediaGroup(parts)
	case "user":
		return r.resolveUser(ctx, parts)
	case "group":
		return r.resolveGroup(ctx, parts)
	case "message":
		return r.resolveMessage(parts)
	}

	return interp.Null, &interp.ResolveError{
		Path: interp.PathKey(parts),
		Msg:  "unknown variable",
	}
}

func (r *Resolver) resolveTime(parts []interp.PathPart) (interp.Value, error) {
	if len(parts) == 2 && parts[1].Name == "unix" {
		return interp.Int(time.Now().Unix()), nil
	}
	return interp.Null, &interp.ResolveError{
		Path: interp.PathKey(parts),
		Msg:  "unknown variable",
	}
}

func (r *Resolver) command() *command {
	if r.cmd == nil && r.Event.Message != nil {
		r.cmd = parseCommand(r.Event.Message.Text)
	}
	return r.cmd
}

func (r *Resolver) resolveCommand(parts []interp.PathPart) (interp.Value, error) {
	if r.Event.Tag != "command" {
		return interp.Null, nil
	}
	cmd := r.command()
	if cmd == nil {
		return interp.Null, nil
	}

	argList := func() interp.Value {
		items := make([]interp.Value, len(cmd.args))
		for i, a := range cmd.args {
			items[i] = interp.String(a)
		}
		return interp.ListOf(items...)
	}

	if len(parts) == 1 {
		return interp.MapOf(map[string]interp.Value{
			"name":      interp.String(cmd.name),
			"arg":       argList(),
			"full_text": interp.String(cmd.fullText),
			"full_args": interp.String(cmd.fullArgs),
		}), nil
	}

	var v interp.Value
	switch parts[1].Name {
	case "name", "text": // "text" is a legacy alias for "name"
		v = interp.String(cmd.name)
	case "full_text":
		v = interp.String(cmd.fullText)
	case "full_args":
		v = interp.String(cmd.fullArgs)
	case "arg_count":
		// The count includes the command token itself.
		v = interp.Int(int64(len(cmd.args) + 1))
	case "arg":
		v = argList()
	default:
		return interp.Null, &interp.ResolveError{
			Path: interp.PathKey(parts),
			Msg:  "unknown variable",
		}
	}
	return interp.Navigate(v, parts[2:])
}

// varScope parses a vars scope segment: "group", "user", or
// "user_<digits>".
func varScope(s string) (scope string, userID int64, ok bool) {
	switch {
	case s == "group":
		return "group", 0, true
	case s == "user":
		return "user", 0, true
	case strings.HasPrefix(s, "user_"):
		n, err := strconv.ParseInt(s[len("user_"):], 10, 64)
		if err != nil || n <= 0 {
			return "", 0, false
		}
		return "user", n, true
	}
	return "", 0, false
}

func (r *Resolver) resolveVar(ctx context.Context, parts []interp.PathPart) (interp.Value, error) {
	// Missing persistent data is not an error: anything that goes
	// wrong under vars.* resolves to null.
	if len(parts) != 3 || parts[1].Name == "" || parts[2].Name == "" {
		return interp.Null, nil
	}
	scope, userID, ok := varScope(parts[1].Name)
	if !ok {
		return interp.Null, nil
	}
	if scope == "user" && userID == 0 {
		userID = EffectiveTarget(r.Event)
		if userID == 0 {
			return interp.Null, nil
		}
	}

	key := fmt.Sprintf("%s#%d", interp.PathKey(parts), userID)
	if v, have := r.memo[key]; have {
		return v, nil
	}

	raw, err := r.Vars.ReadVar(ctx, r.Event.GroupID, scope, parts[2].Name, userID)
	if err != nil {
		return interp.Null, nil
	}
	v := interp.FromGo(raw)
	r.memo[key] = v
	return v, nil
}

func (r *Resolver) resolveMediaGroup(parts []interp.PathPart) (interp.Value, error) {
	if r.Event.Tag != "media_group" || len(parts) < 2 {
		return interp.Null, nil
	}

	var v interp.Value
	switch parts[1].Name {
	case "messages":
		items := make([]interp.Value, len(r.Event.MediaGroup))
		for i, m := range r.Event.MediaGroup {
			items[i] = interp.Opaque(m)
		}
		v = interp.ListOf(items...)
	case "message_count":
		v = interp.Int(int64(len(r.Event.MediaGroup)))
	case "caption":
		v = interp.Null
		for _, m := range r.Event.MediaGroup {
			if m.Caption != "" {
				v = interp.String(m.Caption)
				break
			}
		}
	default:
		return interp.Null, &interp.ResolveError{
			Path: interp.PathKey(parts),
			Msg:  "unknown variable",
		}
	}
	return interp.Navigate(v, parts[2:])
}

var statRe = regexp.MustCompile(`^(messages|joins|leaves)_(\d+)([smhd])$`)

// statWindow parses a stats suffix like "messages_30s" or
// "joins_1d".
func statWindow(s string) (kind string, window time.Duration, ok bool) {
	m := statRe.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	var unit time.Duration
	switch m[3] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return m[1], time.Duration(n) * unit, true
}

func (r *Resolver) resolveStats(ctx context.Context, parts []interp.PathPart, userID int64) (interp.Value, error) {
	path := interp.PathKey(parts)
	kind, window, ok := statWindow(parts[2].Name)
	if !ok {
		return interp.Null, &interp.ResolveError{Path: path, Msg: "unknown statistic"}
	}
	if kind != "messages" && userID != 0 {
		// Per-user joins/leaves are not kept.
		return interp.Null, &interp.ResolveError{Path: path, Msg: "unknown statistic"}
	}

	key := fmt.Sprintf("%s#%d", path, userID)
	if v, have := r.memo[key]; have {
		return v, nil
	}

	n, err := r.Stats.Count(ctx, r.Event.GroupID, kind, window, userID)
	if err != nil {
		return interp.Null, &interp.ResolveError{Path: path, Msg: err.Error()}
	}
	v := interp.Int(int64(n))
	r.memo[key] = v
	return v, nil
}

func userValue(u *chat.User) interp.Value {
	if u == nil {
		return interp.Null
	}
	return interp.Opaque(u)
}

func messageValue(m *chat.Message) interp.Value {
	if m == nil {
		return interp.Null
	}
	return interp.Opaque(m)
}

func (r *Resolver) resolveUser(ctx context.Context, parts []interp.PathPart) (interp.Value, error) {
	if len(parts) == 1 {
		return userValue(r.Event.User), nil
	}

	switch parts[1].Name {
	case "stats":
		if len(parts) != 3 {
			return interp.Null, &interp.ResolveError{
				Path: interp.PathKey(parts),
				Msg:  "unknown statistic",
			}
		}
		if r.Event.User == nil {
			return interp.Int(0), nil
		}
		return r.resolveStats(ctx, parts, r.Event.User.ID)

	case "is_admin":
		return r.resolveIsAdmin(ctx), nil
	}

	return interp.Navigate(userValue(r.Event.User), parts[1:])
}

// resolveIsAdmin asks the platform for the user's standing, once per
// event per (user, chat).  A platform failure reads as "not an
// admin" rather than failing the rule.
func (r *Resolver) resolveIsAdmin(ctx context.Context) interp.Value {
	if r.Event.User == nil || r.Client == nil {
		return interp.Bool(false)
	}

	key := fmt.Sprintf("user.is_admin#%d/%d", r.Event.User.ID, r.Event.GroupID)
	if v, have := r.memo[key]; have {
		return v
	}

	member, err := r.Client.GetChatMember(ctx, r.Event.GroupID, r.Event.User.ID)
	v := interp.Bool(err == nil && member.IsAdmin())
	r.memo[key] = v
	return v
}

func (r *Resolver) resolveGroup(ctx context.Context, parts []interp.PathPart) (interp.Value, error) {
	if len(parts) == 3 && parts[1].Name == "stats" {
		return r.resolveStats(ctx, parts, 0)
	}
	if len(parts) == 2 && parts[1].Name == "id" {
		return interp.Int(r.Event.GroupID), nil
	}
	return interp.Null, &interp.ResolveError{
		Path: interp.PathKey(parts),
		Msg:  "unknown variable",
	}
}

var urlRe = regexp.MustCompile(`https?://\S+`)

func (r *Resolver) resolveMessage(parts []interp.PathPart) (interp.Value, error) {
	if len(parts) == 2 && parts[1].Name == "contains_url" {
		has := r.Event.Message != nil && urlRe.MatchString(r.Event.Message.Text)
		return interp.Bool(has), nil
	}
	return interp.Navigate(messageValue(r.Event.Message), parts[1:])
}
