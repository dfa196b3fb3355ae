// Package engine executes parsed rules against events: it evaluates
// the guard, walks the statement body, and dispatches side effects
// through the action registry.
package engine

import (
	"github.com/groupwarden/groupwarden/lang"
)

// Rule is one administrative rule record: metadata plus source plus
// (after Compile) the parsed AST.  The dispatcher caches compiled
// rules per group and shares them across events; everything under
// Parsed is read-only.
type Rule struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Priority int    `json:"priority" yaml:"priority"`
	Active   bool   `json:"active" yaml:"active"`
	Source   string `json:"source" yaml:"source"`

	// Doc is markdown shown on the rules admin page.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	Parsed *lang.Rule `json:"-" yaml:"-"`
}

// Compile parses the rule source.  A rule that fails to compile is
// excluded from its group's rule set by the dispatcher.
func (r *Rule) Compile() error {
	parsed, err := lang.Parse(r.Source)
	if err != nil {
		return err
	}
	r.Parsed = parsed
	return nil
}

// Outcome is the result of executing one rule for one event.
type Outcome int

const (
	// Completed: the rule ran (or its guard was false) without a
	// rule-level error.
	Completed Outcome = iota

	// Stopped: the rule called stop(); the dispatcher halts
	// further rule processing for this event.
	Stopped

	// Errored: a rule-level failure (evaluation error, resolver
	// error outside vars.*).  Logged; the dispatcher moves on.
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	}
	return "unknown"
}
