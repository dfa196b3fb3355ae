package lang

// Canonical printing.  Print renders a parsed rule back to source in
// a single canonical layout; printing and re-parsing is a fixpoint,
// which the tests rely on.

import (
	"strconv"
	"strings"
)

// Print renders the rule in canonical form.
func Print(r *Rule) string {
	var b strings.Builder

	b.WriteString("WHEN ")
	if r.Schedule != "" {
		b.WriteString("schedule(")
		b.WriteString(quote(r.Schedule))
		b.WriteString(")")
	} else {
		for i, t := range r.Triggers {
			if i > 0 {
				b.WriteString(" or ")
			}
			b.WriteString(t)
		}
	}
	b.WriteString("\n")

	if r.Guard != nil {
		b.WriteString("WHERE ")
		b.WriteString(PrintExpr(r.Guard))
		b.WriteString("\n")
	}

	b.WriteString("THEN ")
	printBlock(&b, r.Body, 0)
	b.WriteString("\nEND\n")

	return b.String()
}

// PrintExpr renders an expression in canonical form with minimal
// parentheses.
func PrintExpr(x Expr) string {
	var b strings.Builder
	printExpr(&b, x, 0)
	return b.String()
}

func printBlock(b *strings.Builder, blk *Block, depth int) {
	b.WriteString("{")
	for _, s := range blk.Stmts {
		b.WriteString("\n")
		indent(b, depth+1)
		printStmt(b, s, depth+1)
	}
	b.WriteString("\n")
	indent(b, depth)
	b.WriteString("}")
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("    ")
	}
}

func printStmt(b *strings.Builder, s Stmt, depth int) {
	switch s := s.(type) {
	case *ExprStmt:
		printExpr(b, s.X, 0)
		b.WriteString(";")
	case *AssignStmt:
		printExpr(b, s.Target, 0)
		b.WriteString(" = ")
		printExpr(b, s.Value, 0)
		b.WriteString(";")
	case *IfStmt:
		b.WriteString("if (")
		printExpr(b, s.Cond, 0)
		b.WriteString(") ")
		printBlock(b, s.Then, depth)
		if s.Else != nil {
			b.WriteString(" else ")
			// else-if prints flat, not as a nested block
			if len(s.Else.Stmts) == 1 {
				if nested, is := s.Else.Stmts[0].(*IfStmt); is {
					printStmt(b, nested, depth)
					return
				}
			}
			printBlock(b, s.Else, depth)
		}
	case *ForeachStmt:
		b.WriteString("foreach (")
		b.WriteString(s.Var)
		b.WriteString(" in ")
		printExpr(b, s.Iterable, 0)
		b.WriteString(") ")
		printBlock(b, s.Body, depth)
	case *BreakStmt:
		b.WriteString("break;")
	case *ContinueStmt:
		b.WriteString("continue;")
	}
}

// binaryPrecedence mirrors the parser's table.
func binaryPrecedence(op string) int {
	switch op {
	case "or":
		return 2
	case "and":
		return 3
	case "==", "!=", ">", ">=", "<", "<=", "contains", "startswith", "endswith":
		return 4
	case "+", "-":
		return 5
	case "*", "/":
		return 6
	}
	return 0
}

// printExpr writes x, parenthesizing it when its precedence is below
// the surrounding context's.
func printExpr(b *strings.Builder, x Expr, ctx int) {
	switch x := x.(type) {
	case *Literal:
		b.WriteString(formatLiteral(x.Value))
	case *ListLiteral:
		b.WriteString("[")
		for i, item := range x.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, item, 0)
		}
		b.WriteString("]")
	case *DictLiteral:
		b.WriteString("{")
		for i, k := range x.Keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(k))
			b.WriteString(": ")
			printExpr(b, x.Values[i], 0)
		}
		b.WriteString("}")
	case *Identifier:
		b.WriteString(x.Name)
	case *Path:
		printExpr(b, x.Root, 8)
		for _, seg := range x.Segs {
			if seg.Index != nil {
				b.WriteString("[")
				printExpr(b, seg.Index, 0)
				b.WriteString("]")
			} else {
				b.WriteString(".")
				b.WriteString(seg.Name)
			}
		}
	case *Unary:
		wrap := ctx > 7
		if wrap {
			b.WriteString("(")
		}
		if x.Op == "not" {
			b.WriteString("not ")
		} else {
			b.WriteString(x.Op)
		}
		printExpr(b, x.X, 7)
		if wrap {
			b.WriteString(")")
		}
	case *Binary:
		prec := binaryPrecedence(x.Op)
		wrap := prec < ctx
		if wrap {
			b.WriteString("(")
		}
		printExpr(b, x.Left, prec)
		b.WriteString(" ")
		b.WriteString(x.Op)
		b.WriteString(" ")
		printExpr(b, x.Right, prec+1)
		if wrap {
			b.WriteString(")")
		}
	case *Call:
		b.WriteString(x.Name)
		b.WriteString("(")
		for i, arg := range x.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, arg, 0)
		}
		b.WriteString(")")
	case *AssignExpr:
		printExpr(b, x.Target, 0)
		b.WriteString(" = ")
		printExpr(b, x.Value, 0)
	}
}

func formatLiteral(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quote(v)
	}
	return "null"
}

func quote(s string) string {
	var b strings.Builder
	b.WriteString(`"`)
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString(`"`)
	return b.String()
}
