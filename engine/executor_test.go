package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/store"
	. "github.com/groupwarden/groupwarden/util/testutil"
)

const groupID = int64(-100200)

type fixture struct {
	rec   *chat.Recorder
	vars  *store.Mem
	stats *store.MemStats
	ex    *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rec:   chat.NewRecorder(),
		vars:  store.NewMem(),
		stats: store.NewMemStats(),
	}
	f.ex = New(f.rec, f.vars, f.vars, f.stats)
	return f
}

func (f *fixture) rule(t *testing.T, src string) *Rule {
	t.Helper()
	rule := &Rule{ID: 1, Name: "test", Active: true, Source: src}
	require.NoError(t, rule.Compile())
	return rule
}

func messageEvent(text string, userID int64) *chat.Event {
	return &chat.Event{
		Tag:     "message",
		GroupID: groupID,
		User:    &chat.User{ID: userID, FirstName: "Pat"},
		Message: &chat.Message{
			ID:     900,
			ChatID: groupID,
			From:   &chat.User{ID: userID, FirstName: "Pat"},
			Text:   text,
		},
		At: time.Now().UTC(),
	}
}

func commandEvent(text string, userID int64) *chat.Event {
	ev := messageEvent(text, userID)
	ev.Tag = "command"
	return ev
}

func TestKeywordReply(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message WHERE message.text contains "hello" THEN { reply("hi"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("say hello there", 1))
	assert.Equal(t, Completed, out)

	require.Len(t, f.rec.Calls, 1)
	assert.Equal(t, "reply", f.rec.Calls[0].Method)
	assert.Equal(t, "hi", f.rec.Calls[0].Args[1])
}

func TestKeywordReplyGuardFalse(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message WHERE message.text contains "hello" THEN { reply("hi"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("nothing here", 1))
	assert.Equal(t, Completed, out)
	assert.Empty(t, f.rec.Calls)
}

func TestThreeStrikeWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.vars.WriteVar(ctx, groupID, "user", "warnings", 2, 77))
	f.rec.SetAdmin(groupID, 5)

	rule := f.rule(t, `WHEN command WHERE command.name == "warn" and user.is_admin THEN {
    t = int(command.arg[0]);
    n = get_var("user.warnings", 0, t) + 1;
    set_var("user.warnings", n, t);
    if (n >= 3) { kick_user(t); set_var("user.warnings", null, t); }
} END`)

	out := f.ex.Execute(ctx, rule, commandEvent("/warn 77", 5))
	assert.Equal(t, Completed, out)

	kicks := f.rec.CallsTo("kick")
	require.Len(t, kicks, 1, JS(f.rec.Calls))
	assert.Equal(t, []interface{}{groupID, int64(77)}, kicks[0].Args)
	assert.Empty(t, f.rec.CallsTo("reply"))

	left, err := f.vars.ReadVar(ctx, groupID, "user", "warnings", 77)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestThreeStrikeFirstWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rec.SetAdmin(groupID, 5)

	rule := f.rule(t, `WHEN command WHERE command.name == "warn" and user.is_admin THEN {
    t = int(command.arg[0]);
    n = get_var("user.warnings", 0, t) + 1;
    set_var("user.warnings", n, t);
    if (n >= 3) { kick_user(t); set_var("user.warnings", null, t); }
} END`)

	out := f.ex.Execute(ctx, rule, commandEvent("/warn 77", 5))
	assert.Equal(t, Completed, out)
	assert.Empty(t, f.rec.CallsTo("kick"))

	n, err := f.vars.ReadVar(ctx, groupID, "user", "warnings", 77)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestShortCircuitGuardNoCalls(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message WHERE message.reply_to_message and message.reply_to_message.from_user.id == 42 THEN { delete_message(); } END`)

	// reply_to is absent
	ev := Event(`{
		"tag": "message",
		"group_id": -100200,
		"user": {"id": 1},
		"message": {"id": 900, "chat_id": -100200, "from": {"id": 1}, "text": "whatever"}
	}`)
	out := f.ex.Execute(context.Background(), rule, ev)

	assert.Equal(t, Completed, out)
	assert.Empty(t, f.rec.Calls, JS(f.rec.Calls))
}

func TestReplyTargetGuard(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message WHERE message.reply_to_message and message.reply_to_message.from_user.id == 42 THEN { delete_message(); } END`)

	ev := Event(`{
		"tag": "message",
		"group_id": -100200,
		"user": {"id": 1},
		"message": {
			"id": 900, "chat_id": -100200, "from": {"id": 1}, "text": "whatever",
			"reply_to": {"id": 890, "chat_id": -100200, "from": {"id": 42}}
		}
	}`)

	out := f.ex.Execute(context.Background(), rule, ev)
	assert.Equal(t, Completed, out)
	require.Len(t, f.rec.CallsTo("delete"), 1, JS(f.rec.Calls))
}

func TestForeachBreak(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN {
    i = 0;
    foreach (c in "abcde") {
        if (c == "c") { break; }
        i = i + 1;
    }
    reply(str(i));
} END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Completed, out)

	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "2", replies[0].Args[1])
}

func TestForeachContinue(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN {
    n = 0;
    foreach (x in [1, 2, 3, 4]) {
        if (x == 2) { continue; }
        n = n + x;
    }
    reply(str(n));
} END`)

	f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "8", replies[0].Args[1])
}

func TestLoopCap(t *testing.T) {
	f := newFixture(t)
	f.ex.LoopLimit = 10
	rule := f.rule(t, `WHEN message THEN {
    foreach (c in "aaaaaaaaaaaaaaaaaaaa") { x = c; }
} END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Errored, out)
}

func TestStopOutcome(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { reply("before"); stop(); reply("after"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Stopped, out)

	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "before", replies[0].Args[1])
}

func TestUnknownActionFailsRule(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { frobnicate("x"); reply("unreached"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Errored, out)
	assert.Empty(t, f.rec.CallsTo("reply"))
}

func TestBuiltinCallStatementIsFine(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { len("x"); reply("ok"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Completed, out)
	assert.Len(t, f.rec.CallsTo("reply"), 1)
}

func TestActionErrorDoesNotStopRule(t *testing.T) {
	f := newFixture(t)
	f.rec.Errs["reply"] = assert.AnError

	rule := f.rule(t, `WHEN message THEN { reply("fails"); send_message("still runs"); } END`)
	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))

	assert.Equal(t, Completed, out)
	require.Len(t, f.rec.CallsTo("send_message"), 1)
}

func TestEvalErrorStopsRule(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { x = 1 / 0; reply("unreached"); } END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Errored, out)
	assert.Empty(t, f.rec.Calls)
}

func TestChainedAssignment(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { a = b = 2; reply(str(a + b)); } END`)

	f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "4", replies[0].Args[1])
}

func TestAssignToContextRootFails(t *testing.T) {
	f := newFixture(t)
	for _, src := range []string{
		`WHEN message THEN { vars.group.x = 1; } END`,
		`WHEN message THEN { user.id = 1; } END`,
	} {
		rule := f.rule(t, src)
		out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
		assert.Equal(t, Errored, out, src)
	}
}

func TestLocalContainerMutation(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN {
    m = {"a": 1};
    m.b = 2;
    m["c"] = m.a + m.b;
    xs = [10, 20];
    xs[0] = 11;
    reply(str(m["c"]) + "/" + str(xs[0]));
} END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 1))
	assert.Equal(t, Completed, out)
	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "3/11", replies[0].Args[1])
}

func TestIsAdminMemoized(t *testing.T) {
	f := newFixture(t)
	f.rec.SetAdmin(groupID, 9)
	rule := f.rule(t, `WHEN message WHERE user.is_admin and user.is_admin THEN {
    if (user.is_admin) { reply("admin"); }
} END`)

	out := f.ex.Execute(context.Background(), rule, messageEvent("go", 9))
	assert.Equal(t, Completed, out)
	assert.Len(t, f.rec.CallsTo("reply"), 1)
	assert.Equal(t, 1, f.rec.APICalls["get_chat_member"])
}

func TestMuteUserDuration(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { mute_user("10m"); } END`)

	before := time.Now()
	f.ex.Execute(context.Background(), rule, messageEvent("go", 7))

	mutes := f.rec.CallsTo("restrict")
	require.Len(t, mutes, 1)
	assert.Equal(t, int64(7), mutes[0].Args[1])
	until := mutes[0].Args[2].(time.Time)
	assert.WithinDuration(t, before.Add(10*time.Minute), until, 5*time.Second)
}

func TestMutePermanentOnZeroDuration(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { mute_user("0"); } END`)
	f.ex.Execute(context.Background(), rule, messageEvent("go", 7))

	mutes := f.rec.CallsTo("restrict")
	require.Len(t, mutes, 1)
	assert.True(t, mutes[0].Args[2].(time.Time).IsZero())
}

func TestTargetFromReply(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN command THEN { ban_user(); } END`)

	ev := commandEvent("/ban", 5)
	ev.Message.ReplyTo = &chat.Message{ID: 890, ChatID: groupID, From: &chat.User{ID: 314}}

	f.ex.Execute(context.Background(), rule, ev)
	bans := f.rec.CallsTo("ban")
	require.Len(t, bans, 1)
	assert.Equal(t, int64(314), bans[0].Args[1])
}

func TestTargetFallsBackToSender(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN message THEN { kick_user(); } END`)

	f.ex.Execute(context.Background(), rule, messageEvent("bye", 21))
	kicks := f.rec.CallsTo("kick")
	require.Len(t, kicks, 1)
	assert.Equal(t, int64(21), kicks[0].Args[1])
}

func TestLogAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rule := f.rule(t, `WHEN message THEN { log("user " + str(user.id) + " was here", "audit"); } END`)

	f.ex.Execute(ctx, rule, messageEvent("go", 33))

	entries, err := f.vars.Logs(ctx, groupID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user 33 was here", entries[0].Text)
	assert.Equal(t, "audit", entries[0].Tag)
}

func TestSetVarGroupScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rule := f.rule(t, `WHEN message THEN { set_var("group.motd", "be kind"); } END`)

	f.ex.Execute(ctx, rule, messageEvent("go", 1))
	v, err := f.vars.ReadVar(ctx, groupID, "group", "motd", 0)
	require.NoError(t, err)
	assert.Equal(t, "be kind", v)
}

func TestSetVarNoUserIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rule := f.rule(t, `WHEN schedule("* * * * *") THEN { set_var("user.x", 1); } END`)

	ev := Event(`{"tag": "schedule", "group_id": -100200}`)
	out := f.ex.Execute(ctx, rule, ev)
	assert.Equal(t, Completed, out)

	v, err := f.vars.ReadVar(ctx, groupID, "user", "x", 0)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestGetVarDefaultsInScheduledEvent(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, `WHEN schedule("* * * * *") THEN { reply("unused"); x = get_var("user.x", 7); send_message(str(x)); } END`)

	ev := Event(`{"tag": "schedule", "group_id": -100200}`)
	out := f.ex.Execute(context.Background(), rule, ev)
	assert.Equal(t, Completed, out)

	sends := f.rec.CallsTo("send_message")
	require.Len(t, sends, 1)
	assert.Equal(t, "7", sends[0].Args[1])
	// reply without a message is a no-op
	assert.Empty(t, f.rec.CallsTo("reply"))
}

func TestScheduleActionDeferred(t *testing.T) {
	f := newFixture(t)
	f.ex.Delay = &immediateDelayer{}
	rule := f.rule(t, `WHEN command THEN { schedule_action("10m", "unmute_user(12345)"); } END`)

	out := f.ex.Execute(context.Background(), rule, commandEvent("/unmute_later", 5))
	assert.Equal(t, Completed, out)

	unmutes := f.rec.CallsTo("unrestrict")
	require.Len(t, unmutes, 1)
	assert.Equal(t, int64(12345), unmutes[0].Args[1])
}

func TestScheduleActionBadScript(t *testing.T) {
	f := newFixture(t)
	f.ex.Delay = &immediateDelayer{}
	rule := f.rule(t, `WHEN command THEN { schedule_action("10m", "not an action"); } END`)

	out := f.ex.Execute(context.Background(), rule, commandEvent("/x", 5))
	assert.Equal(t, Errored, out)
}

// immediateDelayer runs deferred actions synchronously.
type immediateDelayer struct{}

func (immediateDelayer) After(_ time.Duration, f func(ctx context.Context)) {
	f(context.Background())
}

func TestVarsReadThroughPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vars.WriteVar(ctx, groupID, "group", "threshold", 3, 0))

	rule := f.rule(t, `WHEN message WHERE vars.group.threshold == 3 THEN { reply(str(vars.group.missing)); } END`)
	out := f.ex.Execute(ctx, rule, messageEvent("go", 1))

	assert.Equal(t, Completed, out)
	replies := f.rec.CallsTo("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "null", replies[0].Args[1])
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseDuration("30s"))
	assert.Equal(t, 10*time.Minute, ParseDuration("10m"))
	assert.Equal(t, 2*time.Hour, ParseDuration("2h"))
	assert.Equal(t, 24*time.Hour, ParseDuration("1d"))
	assert.Equal(t, time.Duration(0), ParseDuration("0"))
	assert.Equal(t, time.Duration(0), ParseDuration("soon"))
	assert.Equal(t, 5*time.Minute, ParseDuration(" 5M "))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "errored", Errored.String())
	assert.True(t, strings.HasPrefix(Outcome(42).String(), "unknown"))
}
