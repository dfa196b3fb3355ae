package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Rule {
	t.Helper()
	rule, err := Parse(src)
	require.NoError(t, err)
	return rule
}

func TestParseMinimalRule(t *testing.T) {
	rule := mustParse(t, `WHEN message THEN { reply("hi"); } END`)

	assert.Equal(t, []string{"message"}, rule.Triggers)
	assert.Nil(t, rule.Guard)
	require.Len(t, rule.Body.Stmts, 1)

	es, is := rule.Body.Stmts[0].(*ExprStmt)
	require.True(t, is)
	call, is := es.X.(*Call)
	require.True(t, is)
	assert.Equal(t, "reply", call.Name)
	require.Len(t, call.Args, 1)
	assert.Equal(t, "hi", call.Args[0].(*Literal).Value)

	assert.NotEmpty(t, rule.SourceHash)
}

func TestParseTriggerList(t *testing.T) {
	rule := mustParse(t, `WHEN photo or video or document THEN { stop(); } END`)
	assert.Equal(t, []string{"photo", "video", "document"}, rule.Triggers)
	assert.True(t, rule.Triggered("video"))
	assert.False(t, rule.Triggered("message"))
}

func TestParseSchedule(t *testing.T) {
	rule := mustParse(t, `WHEN schedule("0 9 * * *") THEN { send_message("daily"); } END`)
	assert.Equal(t, []string{"schedule"}, rule.Triggers)
	assert.Equal(t, "0 9 * * *", rule.Schedule)
}

func TestParseScheduleExclusive(t *testing.T) {
	_, err := Parse(`WHEN schedule("* * * * *") or message THEN { stop(); } END`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule trigger cannot be combined")

	_, err = Parse(`WHEN message or schedule("* * * * *") THEN { stop(); } END`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule trigger cannot be combined")
}

func TestParseBadCron(t *testing.T) {
	_, err := Parse(`WHEN schedule("not a cron") THEN { stop(); } END`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad cron expression")
}

func TestParseGuard(t *testing.T) {
	rule := mustParse(t, `WHEN message
WHERE message.text contains "hello" and not user.is_admin
THEN { delete_message(); } END`)

	b, is := rule.Guard.(*Binary)
	require.True(t, is)
	assert.Equal(t, "and", b.Op)

	left, is := b.Left.(*Binary)
	require.True(t, is)
	assert.Equal(t, "contains", left.Op)

	right, is := b.Right.(*Unary)
	require.True(t, is)
	assert.Equal(t, "not", right.Op)
}

func TestParsePrecedence(t *testing.T) {
	rule := mustParse(t, `WHEN message WHERE a + b * c == d or e THEN { stop(); } END`)

	// ((a + (b*c)) == d) or e
	or, is := rule.Guard.(*Binary)
	require.True(t, is)
	require.Equal(t, "or", or.Op)

	eq, is := or.Left.(*Binary)
	require.True(t, is)
	require.Equal(t, "==", eq.Op)

	add, is := eq.Left.(*Binary)
	require.True(t, is)
	require.Equal(t, "+", add.Op)

	mul, is := add.Right.(*Binary)
	require.True(t, is)
	assert.Equal(t, "*", mul.Op)
}

func TestParsePaths(t *testing.T) {
	rule := mustParse(t, `WHEN command THEN { t = command.arg[0]; u = vars.user_12345.warnings; } END`)

	a0 := rule.Body.Stmts[0].(*AssignStmt)
	p0 := a0.Value.(*Path)
	assert.Equal(t, "command", p0.RootName())
	require.Len(t, p0.Segs, 2)
	assert.Equal(t, "arg", p0.Segs[0].Name)
	require.NotNil(t, p0.Segs[1].Index)
	assert.Equal(t, float64(0), p0.Segs[1].Index.(*Literal).Value)

	a1 := rule.Body.Stmts[1].(*AssignStmt)
	p1 := a1.Value.(*Path)
	assert.Equal(t, "vars", p1.RootName())
	assert.Equal(t, "user_12345", p1.Segs[0].Name)
	assert.Equal(t, "warnings", p1.Segs[1].Name)
}

func TestParseChainedAssignment(t *testing.T) {
	rule := mustParse(t, `WHEN message THEN { a = b = 1 + 2; } END`)

	outer := rule.Body.Stmts[0].(*AssignStmt)
	assert.Equal(t, "a", outer.Target.(*Identifier).Name)

	inner, is := outer.Value.(*AssignExpr)
	require.True(t, is)
	assert.Equal(t, "b", inner.Target.(*Identifier).Name)
	_, is = inner.Value.(*Binary)
	assert.True(t, is)
}

func TestParseIfElseChain(t *testing.T) {
	rule := mustParse(t, `WHEN message THEN {
    if (a) { x = 1; } else if (b) { x = 2; } else { x = 3; }
} END`)

	top := rule.Body.Stmts[0].(*IfStmt)
	require.NotNil(t, top.Else)
	require.Len(t, top.Else.Stmts, 1)

	nested, is := top.Else.Stmts[0].(*IfStmt)
	require.True(t, is)
	require.NotNil(t, nested.Else)
	assert.Len(t, nested.Else.Stmts, 1)
}

func TestParseForeach(t *testing.T) {
	rule := mustParse(t, `WHEN message THEN {
    foreach (c in "abc") {
        if (c == "b") { break; }
        continue;
    }
} END`)

	fe := rule.Body.Stmts[0].(*ForeachStmt)
	assert.Equal(t, "c", fe.Var)
	require.Len(t, fe.Body.Stmts, 2)
	_, is := fe.Body.Stmts[1].(*ContinueStmt)
	assert.True(t, is)
}

func TestParseLiterals(t *testing.T) {
	rule := mustParse(t, `WHEN message THEN {
    xs = [1, "two", true, null];
    m = {"a": 1, "b": [2, 3]};
} END`)

	xs := rule.Body.Stmts[0].(*AssignStmt).Value.(*ListLiteral)
	require.Len(t, xs.Items, 4)
	assert.Equal(t, true, xs.Items[2].(*Literal).Value)
	assert.Nil(t, xs.Items[3].(*Literal).Value)

	m := rule.Body.Stmts[1].(*AssignStmt).Value.(*DictLiteral)
	assert.Equal(t, []string{"a", "b"}, m.Keys)
}

func TestParseUnaryMinus(t *testing.T) {
	rule := mustParse(t, `WHEN message WHERE x > -5 THEN { stop(); } END`)
	gt := rule.Guard.(*Binary)
	neg, is := gt.Right.(*Unary)
	require.True(t, is)
	assert.Equal(t, "-", neg.Op)
}

func TestParseErrorDiagnostics(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want string
	}{
		{
			`WHEN message THEN { reply("x") } END`,
			`parse error (line 1, column 31): expected ';', got '}'`,
		},
		{
			`WHEN THEN { stop(); } END`,
			`parse error (line 1, column 5): expected identifier, got 'THEN'`,
		},
		{
			`WHEN message THEN { } END extra`,
			`parse error (line 1, column 26): expected end of input, got 'extra'`,
		},
		{
			`WHEN message THEN { if a { stop(); } } END`,
			`parse error (line 1, column 23): expected '(', got 'a'`,
		},
	} {
		_, err := Parse(tc.src)
		require.Error(t, err, tc.src)
		assert.Equal(t, tc.want, err.Error(), tc.src)
	}
}

func TestParseErrorNotPartial(t *testing.T) {
	rule, err := Parse(`WHEN message THEN { x = ; } END`)
	require.Error(t, err)
	assert.Nil(t, rule)
}

func TestPrecompile(t *testing.T) {
	ok, msg := Precompile(`WHEN message WHERE message.text contains "hello" THEN { reply("hi"); } END`)
	assert.True(t, ok)
	assert.Empty(t, msg)

	ok, msg = Precompile(`WHEN message THEN { reply("x") } END`)
	assert.False(t, ok)
	assert.Equal(t, `parse error (line 1, column 31): expected ';', got '}'`, msg)

	// the legacy brace-less form is not accepted
	ok, _ = Precompile(`WHEN message THEN reply("x") END`)
	assert.False(t, ok)
}
