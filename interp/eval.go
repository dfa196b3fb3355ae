package interp

// Expression evaluation.  The evaluator is a pure function of the
// AST and the resolver's outputs: all context data arrives through
// the Resolver interface, and locals through Env.

import (
	"context"
	"strings"

	"github.com/groupwarden/groupwarden/lang"
)

// PathPart is one step of a context-variable path handed to the
// Resolver.  Either Name is set (attribute segment) or Index is set
// (index segment, already evaluated).
type PathPart struct {
	Name  string
	Index *Value
}

// PathKey renders path parts to the canonical string used for
// per-event memoization: "user.stats.messages_30s", "command.arg[0]".
func PathKey(parts []PathPart) string {
	var b strings.Builder
	for i, p := range parts {
		if p.Index != nil {
			b.WriteString("[")
			b.WriteString(p.Index.Display())
			b.WriteString("]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(p.Name)
	}
	return b.String()
}

// Resolver resolves a context-variable path against the current
// event.  It may suspend (platform or database calls) and may fail
// with a *ResolveError.
type Resolver interface {
	Resolve(ctx context.Context, parts []PathPart) (Value, error)
}

// Env looks up local variables.  The executor supplies one; a nil
// Env means there are no locals in scope.
type Env interface {
	Lookup(name string) (Value, bool)
}

// ObjectAttrs is implemented by opaque platform objects that expose
// named fields to path navigation.
type ObjectAttrs interface {
	Attr(name string) (Value, bool)
}

// Evaluator evaluates expressions.
type Evaluator struct {
	Resolver Resolver
	Funcs    Funcs
	Env      Env
}

// Eval evaluates the expression to a Value.
func (e *Evaluator) Eval(ctx context.Context, x lang.Expr) (Value, error) {
	switch x := x.(type) {
	case *lang.Literal:
		return FromGo(x.Value), nil

	case *lang.ListLiteral:
		items := make([]Value, len(x.Items))
		for i, item := range x.Items {
			v, err := e.Eval(ctx, item)
			if err != nil {
				return Null, err
			}
			items[i] = v
		}
		return Value{Kind: KindList, List: items}, nil

	case *lang.DictLiteral:
		dict := make(map[string]Value, len(x.Keys))
		for i, k := range x.Keys {
			v, err := e.Eval(ctx, x.Values[i])
			if err != nil {
				return Null, err
			}
			dict[k] = v
		}
		return MapOf(dict), nil

	case *lang.Identifier:
		if e.Env != nil {
			if v, have := e.Env.Lookup(x.Name); have {
				return v, nil
			}
		}
		return e.resolve(ctx, []PathPart{{Name: x.Name}})

	case *lang.Path:
		return e.evalPath(ctx, x)

	case *lang.Unary:
		return e.evalUnary(ctx, x)

	case *lang.Binary:
		return e.evalBinary(ctx, x)

	case *lang.Call:
		return e.evalCall(ctx, x)

	case *lang.AssignExpr:
		return Null, Errf(x.Line, "misplaced assignment")
	}
	return Null, Errf(0, "unknown expression node")
}

func (e *Evaluator) resolve(ctx context.Context, parts []PathPart) (Value, error) {
	if e.Resolver == nil {
		return Null, nil
	}
	return e.Resolver.Resolve(ctx, parts)
}

// evalPath evaluates an access chain.  A path rooted at a context
// name goes to the Resolver whole, with index segments evaluated
// first.  A path rooted at a local (or at a non-identifier
// expression) is walked here, null-safely.
func (e *Evaluator) evalPath(ctx context.Context, p *lang.Path) (Value, error) {
	if id, is := p.Root.(*lang.Identifier); is {
		local := false
		if e.Env != nil {
			_, local = e.Env.Lookup(id.Name)
		}
		if !local {
			parts := make([]PathPart, 0, len(p.Segs)+1)
			parts = append(parts, PathPart{Name: id.Name})
			for _, seg := range p.Segs {
				if seg.Index != nil {
					idx, err := e.Eval(ctx, seg.Index)
					if err != nil {
						return Null, err
					}
					v := idx
					parts = append(parts, PathPart{Index: &v})
				} else {
					parts = append(parts, PathPart{Name: seg.Name})
				}
			}
			return e.resolve(ctx, parts)
		}
	}

	base, err := e.Eval(ctx, p.Root)
	if err != nil {
		return Null, err
	}
	return e.walk(ctx, base, p)
}

// walk applies the path's segments to a base value.  A null at any
// point makes the whole path null.
func (e *Evaluator) walk(ctx context.Context, base Value, p *lang.Path) (Value, error) {
	v := base
	for _, seg := range p.Segs {
		if v.IsNull() {
			return Null, nil
		}
		if seg.Index != nil {
			idx, err := e.Eval(ctx, seg.Index)
			if err != nil {
				return Null, err
			}
			v, err = indexValue(v, idx, p.Line)
			if err != nil {
				return Null, err
			}
			continue
		}
		var err error
		v, err = attrValue(v, seg.Name, p.Line)
		if err != nil {
			return Null, err
		}
	}
	return v, nil
}

func attrValue(v Value, name string, line int) (Value, error) {
	switch v.Kind {
	case KindMap:
		if item, have := v.Dict[name]; have {
			return item, nil
		}
		return Null, nil
	case KindOpaque:
		if obj, is := v.Op.(ObjectAttrs); is {
			if item, have := obj.Attr(name); have {
				return item, nil
			}
			return Null, &ResolveError{Path: name, Msg: "no such field"}
		}
	}
	return Null, Errf(line, "cannot access '.%s' on %s", name, v.Kind)
}

func indexValue(v Value, idx Value, line int) (Value, error) {
	switch v.Kind {
	case KindList:
		if idx.Kind != KindNumber {
			return Null, Errf(line, "list index must be a number, not %s", idx.Kind)
		}
		i := int(idx.Num)
		if i < 0 || i >= len(v.List) {
			return Null, nil
		}
		return v.List[i], nil
	case KindMap:
		if idx.Kind != KindString {
			return Null, Errf(line, "map key must be a string, not %s", idx.Kind)
		}
		if item, have := v.Dict[idx.Str]; have {
			return item, nil
		}
		return Null, nil
	case KindString:
		if idx.Kind != KindNumber {
			return Null, Errf(line, "string index must be a number, not %s", idx.Kind)
		}
		rs := []rune(v.Str)
		i := int(idx.Num)
		if i < 0 || i >= len(rs) {
			return Null, nil
		}
		return String(string(rs[i])), nil
	}
	return Null, Errf(line, "cannot index %s", v.Kind)
}

func (e *Evaluator) evalUnary(ctx context.Context, x *lang.Unary) (Value, error) {
	v, err := e.Eval(ctx, x.X)
	if err != nil {
		return Null, err
	}
	switch x.Op {
	case "not":
		return Bool(!v.Truthy()), nil
	case "-":
		if v.Kind != KindNumber {
			return Null, Errf(x.Line, "cannot negate %s", v.Kind)
		}
		return Number(-v.Num), nil
	}
	return Null, Errf(x.Line, "unknown unary operator '%s'", x.Op)
}

func (e *Evaluator) evalBinary(ctx context.Context, x *lang.Binary) (Value, error) {
	// and/or short-circuit before the right side is touched.
	switch x.Op {
	case "and":
		l, err := e.Eval(ctx, x.Left)
		if err != nil {
			return Null, err
		}
		if !l.Truthy() {
			return Bool(false), nil
		}
		r, err := e.Eval(ctx, x.Right)
		if err != nil {
			return Null, err
		}
		return Bool(r.Truthy()), nil
	case "or":
		l, err := e.Eval(ctx, x.Left)
		if err != nil {
			return Null, err
		}
		if l.Truthy() {
			return Bool(true), nil
		}
		r, err := e.Eval(ctx, x.Right)
		if err != nil {
			return Null, err
		}
		return Bool(r.Truthy()), nil
	}

	l, err := e.Eval(ctx, x.Left)
	if err != nil {
		return Null, err
	}
	r, err := e.Eval(ctx, x.Right)
	if err != nil {
		return Null, err
	}

	switch x.Op {
	case "+":
		return add(l, r, x.Line)
	case "-", "*", "/":
		return arith(x.Op, l, r, x.Line)
	case "==":
		return Bool(Equal(l, r)), nil
	case "!=":
		return Bool(!Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		return compare(x.Op, l, r, x.Line)
	case "contains":
		return containsOp(l, r, x.Line)
	case "startswith", "endswith":
		return affixOp(x.Op, l, r, x.Line)
	}
	return Null, Errf(x.Line, "unknown operator '%s'", x.Op)
}

func add(l, r Value, line int) (Value, error) {
	switch {
	case l.Kind == KindNumber && r.Kind == KindNumber:
		return Number(l.Num + r.Num), nil
	case l.Kind == KindList && r.Kind == KindList:
		items := make([]Value, 0, len(l.List)+len(r.List))
		items = append(items, l.List...)
		items = append(items, r.List...)
		return Value{Kind: KindList, List: items}, nil
	case l.Kind == KindString || r.Kind == KindString:
		return String(l.Display() + r.Display()), nil
	}
	return Null, Errf(line, "cannot add %s and %s", l.Kind, r.Kind)
}

func arith(op string, l, r Value, line int) (Value, error) {
	if l.Kind != KindNumber || r.Kind != KindNumber {
		return Null, Errf(line, "cannot apply '%s' to %s and %s", op, l.Kind, r.Kind)
	}
	switch op {
	case "-":
		return Number(l.Num - r.Num), nil
	case "*":
		return Number(l.Num * r.Num), nil
	case "/":
		if r.Num == 0 {
			return Null, Errf(line, "division by zero")
		}
		return Number(l.Num / r.Num), nil
	}
	return Null, Errf(line, "unknown operator '%s'", op)
}

func compare(op string, l, r Value, line int) (Value, error) {
	var cmp int
	switch {
	case l.Kind == KindNumber && r.Kind == KindNumber:
		switch {
		case l.Num < r.Num:
			cmp = -1
		case l.Num > r.Num:
			cmp = 1
		}
	case l.Kind == KindString && r.Kind == KindString:
		cmp = strings.Compare(l.Str, r.Str)
	default:
		return Null, Errf(line, "cannot compare %s and %s", l.Kind, r.Kind)
	}
	switch op {
	case "<":
		return Bool(cmp < 0), nil
	case "<=":
		return Bool(cmp <= 0), nil
	case ">":
		return Bool(cmp > 0), nil
	case ">=":
		return Bool(cmp >= 0), nil
	}
	return Null, Errf(line, "unknown operator '%s'", op)
}

func containsOp(l, r Value, line int) (Value, error) {
	switch l.Kind {
	case KindString:
		return Bool(strings.Contains(l.Str, r.Display())), nil
	case KindList:
		for _, item := range l.List {
			if Equal(item, r) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}
	return Null, Errf(line, "'contains' needs a string or list, not %s", l.Kind)
}

func affixOp(op string, l, r Value, line int) (Value, error) {
	if l.Kind != KindString {
		return Null, Errf(line, "'%s' needs a string, not %s", op, l.Kind)
	}
	if op == "startswith" {
		return Bool(strings.HasPrefix(l.Str, r.Display())), nil
	}
	return Bool(strings.HasSuffix(l.Str, r.Display())), nil
}

func (e *Evaluator) evalCall(ctx context.Context, x *lang.Call) (Value, error) {
	f, have := e.Funcs[strings.ToLower(x.Name)]
	if !have {
		return Null, Errf(x.Line, "unknown function '%s'", x.Name)
	}

	args := make([]Value, len(x.Args))
	for i, arg := range x.Args {
		v, err := e.Eval(ctx, arg)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}

	if len(args) < f.MinArgs || (f.MaxArgs >= 0 && len(args) > f.MaxArgs) {
		return Null, Errf(x.Line, "wrong number of arguments for '%s'", x.Name)
	}

	v, err := f.F(ctx, args)
	if err != nil {
		if _, is := err.(*RuntimeError); is {
			return Null, err
		}
		if _, is := err.(*ResolveError); is {
			return Null, err
		}
		return Null, Errf(x.Line, "%s: %s", x.Name, err.Error())
	}
	return v, nil
}
