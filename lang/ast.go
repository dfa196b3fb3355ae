package lang

// AST node types for the rule language.
//
// A parsed Rule and everything under it is immutable after parsing.
// The dispatcher shares parsed rules across events by reference, so
// nothing here carries mutable state.

// Expr is an expression node.
type Expr interface {
	exprNode()
}

// Literal is a constant: a number (float64), string, bool, or nil.
type Literal struct {
	Value interface{}
}

// ListLiteral is a list constructor: [1, "a", x].
type ListLiteral struct {
	Items []Expr
}

// DictLiteral is a mapping constructor: {"k": v, ...}.  Keys keeps
// source order so the canonical printer round-trips.
type DictLiteral struct {
	Keys   []string
	Values []Expr
}

// Identifier is a bare name: a local variable or a context root.
type Identifier struct {
	Name   string
	Line   int
	Column int
}

// PathSeg is one step of a Path: either a named attribute (Name) or
// an index expression (Index).  Exactly one is set.
type PathSeg struct {
	Name  string
	Index Expr
}

// Path is an access chain rooted at an expression, usually an
// Identifier: user.stats.messages_30s, command.arg[0], xs[i].id.
type Path struct {
	Root   Expr
	Segs   []PathSeg
	Line   int
	Column int
}

// RootName returns the root identifier's name, or "" when the path
// is not rooted at an identifier.
func (p *Path) RootName() string {
	if id, is := p.Root.(*Identifier); is {
		return id.Name
	}
	return ""
}

// Unary is a prefix operation: not x, -x.
type Unary struct {
	Op   string
	X    Expr
	Line int
}

// Binary is an infix operation.  Op is the lower-cased operator
// text: "+", "==", "and", "contains", ...
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
	Line  int
}

// Call is a function or action invocation by name.
type Call struct {
	Name   string
	Args   []Expr
	Line   int
	Column int
}

// AssignExpr is the right-associative nest produced by chained
// assignment: in "a = b = e", the value of the outer assignment is
// AssignExpr{Target: b, Value: e}.  Target is an *Identifier or
// *Path.
type AssignExpr struct {
	Target Expr
	Value  Expr
	Line   int
}

func (*Literal) exprNode()     {}
func (*ListLiteral) exprNode() {}
func (*DictLiteral) exprNode() {}
func (*Identifier) exprNode()  {}
func (*Path) exprNode()        {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Call) exprNode()        {}
func (*AssignExpr) exprNode()  {}

// Stmt is a statement node.
type Stmt interface {
	stmtNode()
}

// Block is a braced statement sequence.
type Block struct {
	Stmts []Stmt
}

// ExprStmt is an expression evaluated for effect, usually an action
// call.
type ExprStmt struct {
	X    Expr
	Line int
}

// AssignStmt binds the value of an expression to a target path in
// the local scope.  Value may itself be an *AssignExpr (chained
// assignment).
type AssignStmt struct {
	Target Expr // *Identifier or *Path
	Value  Expr
	Line   int
}

// IfStmt is if/else.  Else is nil when absent; "else if" parses as
// an Else block holding a single IfStmt.
type IfStmt struct {
	Cond Expr
	Then *Block
	Else *Block
	Line int
}

// ForeachStmt iterates a list's elements or a string's runes.
type ForeachStmt struct {
	Var      string
	Iterable Expr
	Body     *Block
	Line     int
}

type BreakStmt struct {
	Line int
}

type ContinueStmt struct {
	Line int
}

func (*ExprStmt) stmtNode()     {}
func (*AssignStmt) stmtNode()   {}
func (*IfStmt) stmtNode()       {}
func (*ForeachStmt) stmtNode()  {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}

// Rule is a fully parsed rule: its trigger set, optional guard, and
// body.  Priority and the active flag live on the surrounding rule
// record (engine.Rule); they are administrative data, not syntax.
type Rule struct {
	// Triggers is the event tags this rule fires on, in source
	// order.  For a scheduled rule it is exactly ["schedule"].
	Triggers []string `json:"triggers"`

	// Schedule is the cron expression of a schedule("...") trigger,
	// "" otherwise.
	Schedule string `json:"schedule,omitempty"`

	// Guard is the WHERE expression, nil when absent.
	Guard Expr `json:"-"`

	Body *Block `json:"-"`

	// SourceHash identifies the source text this rule was parsed
	// from: Parse sets it to the hex SHA-256 of the source.
	SourceHash string `json:"sourceHash,omitempty"`
}

// Triggered reports whether the rule's trigger set contains the
// given event tag.
func (r *Rule) Triggered(tag string) bool {
	for _, t := range r.Triggers {
		if t == tag {
			return true
		}
	}
	return false
}
