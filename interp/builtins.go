package interp

// Built-in pure functions, callable inside expressions.  The engine
// extends a copy of this table with get_var, which is bound to the
// event's stores.

import (
	"context"
	"strconv"
	"strings"
)

// Func is a built-in function: a name, an arity range, and the
// implementation.  MaxArgs of -1 means variadic.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int
	F       func(ctx context.Context, args []Value) (Value, error)
}

// Funcs maps lower-cased names to built-ins.
type Funcs map[string]*Func

// Register adds a built-in, replacing any previous one of the same
// name.
func (fs Funcs) Register(f *Func) {
	fs[strings.ToLower(f.Name)] = f
}

// Copy makes a shallow copy of the table.
func (fs Funcs) Copy() Funcs {
	acc := make(Funcs, len(fs))
	for name, f := range fs {
		acc[name] = f
	}
	return acc
}

// StdFuncs returns the standard built-in table: len, str, int,
// lower, upper, split, join.
func StdFuncs() Funcs {
	fs := make(Funcs)

	fs.Register(&Func{
		Name: "len", MinArgs: 1, MaxArgs: 1,
		F: func(_ context.Context, args []Value) (Value, error) {
			switch v := args[0]; v.Kind {
			case KindString:
				return Int(int64(len([]rune(v.Str)))), nil
			case KindList:
				return Int(int64(len(v.List))), nil
			case KindMap:
				return Int(int64(len(v.Dict))), nil
			case KindNull:
				return Int(0), nil
			}
			return Null, &RuntimeError{Msg: "len() needs a string, list, or map"}
		},
	})

	fs.Register(&Func{
		Name: "str", MinArgs: 1, MaxArgs: 1,
		F: func(_ context.Context, args []Value) (Value, error) {
			return String(args[0].Display()), nil
		},
	})

	fs.Register(&Func{
		Name: "int", MinArgs: 1, MaxArgs: 1,
		F: func(_ context.Context, args []Value) (Value, error) {
			return Int(coerceInt(args[0])), nil
		},
	})

	fs.Register(&Func{
		Name: "lower", MinArgs: 1, MaxArgs: 1,
		F: func(_ context.Context, args []Value) (Value, error) {
			return String(strings.ToLower(args[0].Display())), nil
		},
	})

	fs.Register(&Func{
		Name: "upper", MinArgs: 1, MaxArgs: 1,
		F: func(_ context.Context, args []Value) (Value, error) {
			return String(strings.ToUpper(args[0].Display())), nil
		},
	})

	fs.Register(&Func{
		Name: "split", MinArgs: 2, MaxArgs: 3,
		F: func(_ context.Context, args []Value) (Value, error) {
			s := args[0].Display()
			sep := args[1].Display()
			n := -1
			if len(args) == 3 {
				if args[2].Kind != KindNumber {
					return Null, &RuntimeError{Msg: "split() maxsplit must be a number"}
				}
				n = int(args[2].Num) + 1
			}
			parts := strings.SplitN(s, sep, n)
			items := make([]Value, len(parts))
			for i, p := range parts {
				items[i] = String(p)
			}
			return Value{Kind: KindList, List: items}, nil
		},
	})

	fs.Register(&Func{
		Name: "join", MinArgs: 2, MaxArgs: 2,
		F: func(_ context.Context, args []Value) (Value, error) {
			if args[0].Kind != KindList {
				return Null, &RuntimeError{Msg: "join() needs a list"}
			}
			sep := args[1].Display()
			parts := make([]string, len(args[0].List))
			for i, item := range args[0].List {
				parts[i] = item.Display()
			}
			return String(strings.Join(parts, sep)), nil
		},
	})

	return fs
}

// coerceInt implements int(): numbers truncate toward zero, strings
// parse base-10 (a float string truncates), true is 1, and false or
// anything else is 0.
func coerceInt(v Value) int64 {
	switch v.Kind {
	case KindNumber:
		return int64(v.Num)
	case KindString:
		s := strings.TrimSpace(v.Str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	case KindBool:
		if v.Flag {
			return 1
		}
	}
	return 0
}
