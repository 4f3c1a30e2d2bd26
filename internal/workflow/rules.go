package workflow

import (
	"fmt"
	"os"
	"strings"

	"leadlynx/internal/scoring"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// TriggerKind names the condition a rule waits for
type TriggerKind string

const (
	TriggerScoring         TriggerKind = "scoring"
	TriggerCategoryScoring TriggerKind = "categoryScoring"
	TriggerIdentified      TriggerKind = "identified"
)

type Config struct {
	Rules []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Name    string        `yaml:"name"`
	Trigger TriggerConfig `yaml:"trigger"`
	Action  ActionConfig  `yaml:"action"`
}

type TriggerConfig struct {
	Type       TriggerKind `yaml:"type"`
	Threshold  int         `yaml:"threshold"`
	CategoryID uint        `yaml:"category_id"`
}

type ActionConfig struct {
	Type   ActionKind             `yaml:"type"`
	Params map[string]interface{} `yaml:"params"`
}

// Event is what one tracked request changed on the visitor
type Event struct {
	ScoringBefore    int
	ScoringAfter     int
	Categories       []*scoring.Change
	BecameIdentified bool
}

// Rule is a validated trigger/action pair
type Rule struct {
	Name    string
	Trigger TriggerConfig
	Action  Action
}

// fires reports whether the trigger condition was crossed during the event
func (r Rule) fires(ev Event) bool {
	switch r.Trigger.Type {
	case TriggerScoring:
		return crossed(ev.ScoringBefore, ev.ScoringAfter, r.Trigger.Threshold)
	case TriggerCategoryScoring:
		for _, change := range ev.Categories {
			if change.CategoryID == r.Trigger.CategoryID && crossed(change.Old, change.New, r.Trigger.Threshold) {
				return true
			}
		}
	case TriggerIdentified:
		return ev.BecameIdentified
	}
	return false
}

func crossed(before, after, threshold int) bool {
	return before < threshold && after >= threshold
}

// Load reads rules from a YAML file. An empty path yields no rules.
func Load(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Parse(data)
}

// Parse validates rules from YAML
func Parse(data []byte) ([]Rule, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse workflow yaml: %w", err)
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}

		switch rc.Trigger.Type {
		case TriggerScoring, TriggerIdentified:
		case TriggerCategoryScoring:
			if rc.Trigger.CategoryID == 0 {
				return nil, fmt.Errorf("rule %s: categoryScoring trigger needs category_id", name)
			}
		default:
			return nil, fmt.Errorf("rule %s: unknown trigger %q", name, rc.Trigger.Type)
		}

		action, err := BuildAction(rc.Action.Type, rc.Action.Params)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		rules = append(rules, Rule{Name: name, Trigger: rc.Trigger, Action: action})
	}
	return rules, nil
}

// Evaluator turns events into directives
type Evaluator struct {
	rules  []Rule
	logger *pterm.Logger
}

func NewEvaluator(rules []Rule, logger *pterm.Logger) *Evaluator {
	return &Evaluator{rules: rules, logger: logger}
}

// Evaluate returns the directives of every rule that fired, in rule order
func (e *Evaluator) Evaluate(ev Event) []Directive {
	directives := make([]Directive, 0)
	for _, rule := range e.rules {
		if !rule.fires(ev) {
			continue
		}
		e.logger.Debug("Workflow rule fired",
			e.logger.Args("rule", rule.Name, "action", rule.Action.Kind()))
		directives = append(directives, rule.Action.Directive())
	}
	return directives
}

// Rules returns the loaded rules
func (e *Evaluator) Rules() []Rule {
	return e.rules
}
