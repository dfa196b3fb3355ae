// Package tools renders rule sets for humans: the admin page that
// lists a group's rules with their docs and sources.
package tools

import (
	"fmt"
	"html"
	"io"
	"os"

	"github.com/jsccast/yaml"
	md "github.com/russross/blackfriday/v2"

	"github.com/groupwarden/groupwarden/engine"
	"github.com/groupwarden/groupwarden/lang"
)

// RenderRulesHTML writes an HTML fragment describing the rules.
// Docs are markdown; sources are canonicalized when they parse and
// shown verbatim when they don't.
func RenderRulesHTML(rules []*engine.Rule, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="rules"><table>`)
	for _, rule := range rules {
		state := "inactive"
		if rule.Active {
			state = "active"
		}
		f(`<tr class="rule %s"><td><span class="ruleId">#%d</span></td><td>`, state, rule.ID)
		f(`<div class="ruleName">%s <span class="rulePriority">p%d</span></div>`,
			html.EscapeString(rule.Name), rule.Priority)

		if rule.Doc != "" {
			f(`<div class="ruleDoc doc">%s</div>`, md.Run([]byte(rule.Doc)))
		}

		src := rule.Source
		if parsed, err := lang.Parse(src); err == nil {
			src = lang.Print(parsed)
			f(`<div class="triggers">triggers: <code>%s</code></div>`,
				html.EscapeString(fmt.Sprint(parsed.Triggers)))
		} else {
			f(`<div class="parseError">%s</div>`, html.EscapeString(err.Error()))
		}
		f(`<div class="code"><pre>%s</pre></div>`, html.EscapeString(src))

		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

// ruleFile is the on-disk rule list shape: group id to rule list.
type ruleFile struct {
	Groups map[int64][]*engine.Rule `yaml:"groups"`
}

// LoadRuleFile reads a YAML rule file and returns rules per group.
func LoadRuleFile(filename string) (map[int64][]*engine.Rule, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := yaml.Unmarshal(bs, &rf); err != nil {
		return nil, err
	}
	return rf.Groups, nil
}

// RenderRuleFileHTML renders every group in a rule file.
func RenderRuleFileHTML(filename string, out io.Writer) error {
	groups, err := LoadRuleFile(filename)
	if err != nil {
		return err
	}
	for groupID, rules := range groups {
		fmt.Fprintf(out, `<h2 class="group">group %d</h2>`+"\n", groupID)
		if err := RenderRulesHTML(rules, out); err != nil {
			return err
		}
	}
	return nil
}
