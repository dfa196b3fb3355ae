package dispatch

// StaticSource is a RuleSource over an in-memory rule table.  The
// daemon fills one from rule files; tests build them directly.

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/groupwarden/groupwarden/engine"
)

// StaticSource holds rules per group.  It implements RuleSource and
// RuleToggler.
type StaticSource struct {
	sync.Mutex

	rules map[int64][]*engine.Rule
}

// NewStaticSource makes an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		rules: make(map[int64][]*engine.Rule),
	}
}

// Add appends a rule to a group.
func (s *StaticSource) Add(groupID int64, rule *engine.Rule) {
	s.Lock()
	defer s.Unlock()
	s.rules[groupID] = append(s.rules[groupID], rule)
}

func (s *StaticSource) GroupRules(_ context.Context, groupID int64) ([]*engine.Rule, error) {
	s.Lock()
	defer s.Unlock()
	rules := s.rules[groupID]
	if len(rules) == 0 {
		// A group with no rules of its own gets the defaults.
		rules = DefaultRules()
		s.rules[groupID] = rules
	}
	acc := make([]*engine.Rule, len(rules))
	copy(acc, rules)
	return acc, nil
}

func (s *StaticSource) Groups(_ context.Context) ([]int64, error) {
	s.Lock()
	defer s.Unlock()
	acc := make([]int64, 0, len(s.rules))
	for id := range s.rules {
		acc = append(acc, id)
	}
	sort.Slice(acc, func(i, j int) bool { return acc[i] < acc[j] })
	return acc, nil
}

func (s *StaticSource) ToggleRule(_ context.Context, groupID, ruleID int64) (bool, error) {
	s.Lock()
	defer s.Unlock()
	for _, rule := range s.rules[groupID] {
		if rule.ID == ruleID {
			rule.Active = !rule.Active
			return rule.Active, nil
		}
	}
	return false, fmt.Errorf("no rule %d in group %d", ruleID, groupID)
}

// DefaultRules is the starter rule set installed for a group that
// has none: join verification and flood detection per media kind.
func DefaultRules() []*engine.Rule {
	mk := func(id int64, name string, priority int, source string) *engine.Rule {
		return &engine.Rule{
			ID:       id,
			Name:     name,
			Priority: priority,
			Active:   true,
			Source:   source,
		}
	}

	flood := func(trigger string) string {
		return `WHEN ` + trigger + `
WHERE user.is_admin == false and user.stats.messages_30s > 5
THEN {
    mute_user("10m");
    send_message("Flood detected; user muted for 10 minutes.");
    log("user " + str(user.id) + " muted for flooding", "auto_moderation_flood");
    delete_message();
    stop();
}
END`
	}

	return []*engine.Rule{
		mk(1, "join verification", 1000, `WHEN user_join
THEN {
    start_verification();
}
END`),
		mk(2, "flood detection (text)", 500, flood("message or command")),
		mk(3, "flood detection (photo)", 500, flood("photo")),
		mk(4, "flood detection (video)", 500, flood("video")),
		mk(5, "flood detection (document)", 500, flood("document")),
		mk(6, "flood detection (album)", 500, flood("media_group")),
	}
}
