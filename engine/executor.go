package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/interp"
	"github.com/groupwarden/groupwarden/lang"
	"github.com/groupwarden/groupwarden/resolve"
	"github.com/groupwarden/groupwarden/store"
)

// DefaultLoopLimit caps foreach iterations.  The cap is a safety net
// against runaway loops, surfaced as a RuntimeError.
const DefaultLoopLimit = 10000

// Executor runs rules.  One Executor serves all groups; per-event
// state (scope, resolver, memo) lives in the run built by Execute.
type Executor struct {
	Client chat.Client
	Vars   store.VarStore
	Logs   store.LogStore
	Stats  store.StatsStore

	Actions Actions
	Funcs   interp.Funcs

	// Delay schedules the deferred action of schedule_action.
	Delay Delayer

	Logger *log.Logger

	// LoopLimit overrides DefaultLoopLimit when positive.
	LoopLimit int
}

// New makes an Executor with the standard actions and built-ins.
func New(client chat.Client, vars store.VarStore, logs store.LogStore, stats store.StatsStore) *Executor {
	return &Executor{
		Client:  client,
		Vars:    vars,
		Logs:    logs,
		Stats:   stats,
		Actions: StdActions(),
		Funcs:   interp.StdFuncs(),
		Delay:   GoDelayer{},
		Logger:  log.Default(),
	}
}

func (ex *Executor) loopLimit() int {
	if ex.LoopLimit > 0 {
		return ex.LoopLimit
	}
	return DefaultLoopLimit
}

func (ex *Executor) logger() *log.Logger {
	if ex.Logger != nil {
		return ex.Logger
	}
	return log.Default()
}

// control-flow signals inside a rule body
type signal int

const (
	sigNone signal = iota
	sigBreak
	sigContinue
	sigStop
)

// run is the per-execution state of one rule against one event.
type run struct {
	ex    *Executor
	rule  *Rule
	ev    *chat.Event
	scope *scope
	eval  *interp.Evaluator
}

// Execute runs one rule against one event.  A non-truthy guard
// completes without side effects; evaluation errors are logged and
// reported as Errored; action (platform) errors are logged and the
// rule continues.
func (ex *Executor) Execute(ctx context.Context, rule *Rule, ev *chat.Event) Outcome {
	if rule.Parsed == nil {
		ex.logger().Error("rule not compiled", "rule", rule.ID, "group", ev.GroupID)
		return Errored
	}

	r := &run{
		ex:    ex,
		rule:  rule,
		ev:    ev,
		scope: newScope(),
	}

	funcs := ex.Funcs.Copy()
	funcs.Register(r.getVarFunc())

	r.eval = &interp.Evaluator{
		Resolver: resolve.New(ev, ex.Client, ex.Vars, ex.Stats),
		Funcs:    funcs,
		Env:      r.scope,
	}

	if g := rule.Parsed.Guard; g != nil {
		v, err := r.eval.Eval(ctx, g)
		if err != nil {
			r.fail("guard", err)
			return Errored
		}
		if !v.Truthy() {
			return Completed
		}
	}

	sig, err := r.block(ctx, rule.Parsed.Body)
	if err != nil {
		r.fail("body", err)
		return Errored
	}
	if sig == sigStop {
		return Stopped
	}
	return Completed
}

func (r *run) fail(where string, err error) {
	line := 0
	if re, is := err.(*interp.RuntimeError); is {
		line = re.Line
	}
	r.ex.logger().Error("rule failed",
		"rule", r.rule.ID,
		"group", r.ev.GroupID,
		"where", where,
		"line", line,
		"err", err)
}

func (r *run) block(ctx context.Context, blk *lang.Block) (signal, error) {
	for _, s := range blk.Stmts {
		sig, err := r.stmt(ctx, s)
		if err != nil || sig != sigNone {
			return sig, err
		}
	}
	return sigNone, nil
}

func (r *run) stmt(ctx context.Context, s lang.Stmt) (signal, error) {
	switch s := s.(type) {
	case *lang.AssignStmt:
		v, err := r.assignValue(ctx, s.Value)
		if err != nil {
			return sigNone, err
		}
		return sigNone, r.assign(ctx, s.Target, v)

	case *lang.ExprStmt:
		if call, is := s.X.(*lang.Call); is {
			return r.call(ctx, call)
		}
		_, err := r.eval.Eval(ctx, s.X)
		return sigNone, err

	case *lang.IfStmt:
		v, err := r.eval.Eval(ctx, s.Cond)
		if err != nil {
			return sigNone, err
		}
		if v.Truthy() {
			return r.block(ctx, s.Then)
		}
		if s.Else != nil {
			return r.block(ctx, s.Else)
		}
		return sigNone, nil

	case *lang.ForeachStmt:
		return r.foreach(ctx, s)

	case *lang.BreakStmt:
		return sigBreak, nil

	case *lang.ContinueStmt:
		return sigContinue, nil
	}
	return sigNone, nil
}

// assignValue evaluates the right side of an assignment.  A chained
// assignment (a = b = e) evaluates e once, binds the inner targets
// on the way out, and yields the value for the outer target.
func (r *run) assignValue(ctx context.Context, x lang.Expr) (interp.Value, error) {
	if chain, is := x.(*lang.AssignExpr); is {
		v, err := r.assignValue(ctx, chain.Value)
		if err != nil {
			return interp.Null, err
		}
		if err := r.assign(ctx, chain.Target, v); err != nil {
			return interp.Null, err
		}
		return v, nil
	}
	return r.eval.Eval(ctx, x)
}

// assign binds a value to a target path in the local scope.  Context
// roots are read-only: persistent state changes only through
// set_var.
func (r *run) assign(ctx context.Context, target lang.Expr, v interp.Value) error {
	switch t := target.(type) {
	case *lang.Identifier:
		r.scope.set(t.Name, v)
		return nil

	case *lang.Path:
		id, is := t.Root.(*lang.Identifier)
		if !is {
			return interp.Errf(t.Line, "bad assignment target")
		}
		base, have := r.scope.Lookup(id.Name)
		if !have {
			return interp.Errf(t.Line, "cannot assign to '%s'", id.Name)
		}
		if err := r.mutate(ctx, base, t, v); err != nil {
			return err
		}
		// Maps and list elements share storage, but write the
		// base back so a rebound slice header is kept too.
		r.scope.set(id.Name, base)
		return nil
	}
	return interp.Errf(0, "bad assignment target")
}

// mutate sets the element addressed by the path's segments inside
// base, which must already contain the intermediate containers.
func (r *run) mutate(ctx context.Context, base interp.Value, p *lang.Path, v interp.Value) error {
	cur := base
	for i, seg := range p.Segs {
		last := i == len(p.Segs)-1

		if seg.Index != nil {
			idx, err := r.eval.Eval(ctx, seg.Index)
			if err != nil {
				return err
			}
			switch cur.Kind {
			case interp.KindList:
				if idx.Kind != interp.KindNumber {
					return interp.Errf(p.Line, "list index must be a number")
				}
				n := int(idx.Num)
				if n < 0 || n >= len(cur.List) {
					return interp.Errf(p.Line, "list index out of range")
				}
				if last {
					cur.List[n] = v
					return nil
				}
				cur = cur.List[n]
			case interp.KindMap:
				if idx.Kind != interp.KindString {
					return interp.Errf(p.Line, "map key must be a string")
				}
				if last {
					cur.Dict[idx.Str] = v
					return nil
				}
				next, have := cur.Dict[idx.Str]
				if !have {
					return interp.Errf(p.Line, "no such key '%s'", idx.Str)
				}
				cur = next
			default:
				return interp.Errf(p.Line, "cannot index %s", cur.Kind)
			}
			continue
		}

		if cur.Kind != interp.KindMap {
			return interp.Errf(p.Line, "cannot access '.%s' on %s", seg.Name, cur.Kind)
		}
		if last {
			cur.Dict[seg.Name] = v
			return nil
		}
		next, have := cur.Dict[seg.Name]
		if !have {
			return interp.Errf(p.Line, "no such key '%s'", seg.Name)
		}
		cur = next
	}
	return nil
}

func (r *run) foreach(ctx context.Context, s *lang.ForeachStmt) (signal, error) {
	iter, err := r.eval.Eval(ctx, s.Iterable)
	if err != nil {
		return sigNone, err
	}

	var items []interp.Value
	switch iter.Kind {
	case interp.KindList:
		items = iter.List
	case interp.KindString:
		rs := []rune(iter.Str)
		items = make([]interp.Value, len(rs))
		for i, c := range rs {
			items[i] = interp.String(string(c))
		}
	case interp.KindNull:
		return sigNone, nil
	default:
		return sigNone, interp.Errf(s.Line, "foreach needs a list or string, not %s", iter.Kind)
	}

	limit := r.ex.loopLimit()

	r.scope.push()
	defer r.scope.pop()

	for i, item := range items {
		if i >= limit {
			return sigNone, interp.Errf(s.Line, "loop iteration limit exceeded")
		}
		r.scope.setTop(s.Var, item)

		sig, err := r.block(ctx, s.Body)
		if err != nil {
			return sigNone, err
		}
		switch sig {
		case sigBreak:
			return sigNone, nil
		case sigStop:
			return sigStop, nil
		}
		// sigContinue and sigNone both proceed.
	}
	return sigNone, nil
}

// call executes a call statement.  Registered actions dispatch to
// their adapters; built-in functions evaluate for effect; anything
// else is an unknown action.
func (r *run) call(ctx context.Context, call *lang.Call) (signal, error) {
	name := strings.ToLower(call.Name)

	action, isAction := r.ex.Actions[name]
	if !isAction {
		if _, isFunc := r.eval.Funcs[name]; isFunc {
			_, err := r.eval.Eval(ctx, call)
			return sigNone, err
		}
		return sigNone, interp.Errf(call.Line, "unknown action '%s'", call.Name)
	}

	args := make([]interp.Value, len(call.Args))
	for i, arg := range call.Args {
		v, err := r.eval.Eval(ctx, arg)
		if err != nil {
			return sigNone, err
		}
		args[i] = v
	}

	inv := &Invocation{
		Rule:  r.rule,
		Event: r.ev,
		Args:  args,
		Line:  call.Line,
		run:   r,
	}

	err := action(ctx, r.ex, inv)
	switch {
	case err == nil:
		return sigNone, nil
	case err == errStop:
		return sigStop, nil
	}
	if _, is := err.(*interp.RuntimeError); is {
		// A misuse of the action (bad argument), not a platform
		// failure: the rule dies.
		return sigNone, err
	}
	// Platform failure: log and keep going with the next
	// statement.
	r.ex.logger().Warn("action failed",
		"action", call.Name,
		"rule", r.rule.ID,
		"group", r.ev.GroupID,
		"line", call.Line,
		"err", err)
	return sigNone, nil
}

// getVarFunc builds the get_var built-in bound to this run's event
// and store: get_var("user.warnings", default?, user_id?).
func (r *run) getVarFunc() *interp.Func {
	return &interp.Func{
		Name:    "get_var",
		MinArgs: 1,
		MaxArgs: 3,
		F: func(ctx context.Context, args []interp.Value) (interp.Value, error) {
			scope, name, userID, err := r.varAddress(args[0], argOrNull(args, 2))
			if err != nil {
				return interp.Null, err
			}

			fallback := interp.Null
			if len(args) >= 2 {
				fallback = args[1]
			}

			if scope == "user" && userID == 0 {
				return fallback, nil
			}
			raw, err := r.ex.Vars.ReadVar(ctx, r.ev.GroupID, scope, name, userID)
			if err != nil || raw == nil {
				return fallback, nil
			}
			return interp.FromGo(raw), nil
		},
	}
}

// varAddress splits a "scope.name" variable path and resolves the
// user the variable belongs to.  explicit carries a user_id
// argument, Null if absent.
func (r *run) varAddress(path interp.Value, explicit interp.Value) (scope, name string, userID int64, err error) {
	if path.Kind != interp.KindString {
		return "", "", 0, &interp.RuntimeError{Msg: "variable path must be a string"}
	}
	parts := strings.SplitN(path.Str, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, &interp.RuntimeError{Msg: "bad variable path '" + path.Str + "'"}
	}

	scopeName := strings.ToLower(parts[0])
	name = parts[1]

	switch {
	case scopeName == "group":
		return "group", name, 0, nil
	case scopeName == "user":
		if !explicit.IsNull() {
			id, err := explicitUserID(explicit)
			if err != nil {
				return "", "", 0, err
			}
			return "user", name, id, nil
		}
		// No user in scheduled events: reads fall back, writes
		// are dropped.
		return "user", name, resolve.EffectiveTarget(r.ev), nil
	case strings.HasPrefix(scopeName, "user_"):
		id, perr := strconv.ParseInt(scopeName[len("user_"):], 10, 64)
		if perr != nil || id <= 0 {
			return "", "", 0, &interp.RuntimeError{Msg: "bad variable scope '" + parts[0] + "'"}
		}
		return "user", name, id, nil
	}
	return "", "", 0, &interp.RuntimeError{Msg: "bad variable scope '" + parts[0] + "'"}
}

func explicitUserID(v interp.Value) (int64, error) {
	switch v.Kind {
	case interp.KindNumber:
		return int64(v.Num), nil
	case interp.KindString:
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return 0, &interp.RuntimeError{Msg: "bad user id '" + v.Str + "'"}
		}
		return n, nil
	}
	return 0, &interp.RuntimeError{Msg: "user id must be a number"}
}

func argOrNull(args []interp.Value, i int) interp.Value {
	if i < len(args) {
		return args[i]
	}
	return interp.Null
}
