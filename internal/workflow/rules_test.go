package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"leadlynx/internal/scoring"

	"github.com/pterm/pterm"
)

const sampleRules = `
rules:
  - name: hot lead lightbox
    trigger:
      type: scoring
      threshold: 50
    action:
      type: lightboxContent
      params:
        contentElement: 12
        delay: "1500"
  - name: pricing interest
    trigger:
      type: categoryScoring
      category_id: 3
      threshold: 40
    action:
      type: ajaxContent
      params:
        contentElement: 7
        domselection: "#offer"
  - name: welcome back
    trigger:
      type: identified
    action:
      type: redirect
      params:
        uri: https://example.com/welcome
`

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	rules, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatalf("Failed to parse rules: %v", err)
	}
	return NewEvaluator(rules, pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace))
}

func TestParse_BuildsActions(t *testing.T) {
	ev := testEvaluator(t)
	rules := ev.Rules()
	if len(rules) != 3 {
		t.Fatalf("Expected 3 rules, got %d", len(rules))
	}

	lightbox, ok := rules[0].Action.(LightboxContent)
	if !ok {
		t.Fatalf("Expected LightboxContent, got %T", rules[0].Action)
	}
	if lightbox.ContentElement != 12 || lightbox.Delay != 1500 {
		t.Errorf("Expected element 12 with delay 1500, got %+v", lightbox)
	}
	if rules[2].Action.Kind() != ActionRedirect {
		t.Errorf("Expected redirect action, got %s", rules[2].Action.Kind())
	}
}

func TestParse_RejectsInvalidRules(t *testing.T) {
	tests := map[string]string{
		"unknown trigger": `
rules:
  - trigger: {type: weather}
    action: {type: redirect, params: {uri: /x}}
`,
		"category without id": `
rules:
  - trigger: {type: categoryScoring, threshold: 5}
    action: {type: redirect, params: {uri: /x}}
`,
		"unknown action": `
rules:
  - trigger: {type: identified}
    action: {type: confetti}
`,
		"missing redirect uri": `
rules:
  - trigger: {type: identified}
    action: {type: redirect}
`,
		"broken yaml": "rules: [",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}
}

func TestEvaluate_FiresOnlyOnCrossing(t *testing.T) {
	ev := testEvaluator(t)

	tests := []struct {
		name     string
		event    Event
		expected []ActionKind
	}{
		{"below threshold", Event{ScoringBefore: 10, ScoringAfter: 49}, nil},
		{"crosses threshold", Event{ScoringBefore: 45, ScoringAfter: 50}, []ActionKind{ActionLightboxContent}},
		{"already above", Event{ScoringBefore: 60, ScoringAfter: 70}, nil},
		{
			"category crosses",
			Event{Categories: []*scoring.Change{{CategoryID: 3, Old: 30, New: 40}}},
			[]ActionKind{ActionAjaxContent},
		},
		{
			"other category",
			Event{Categories: []*scoring.Change{{CategoryID: 4, Old: 30, New: 40}}},
			nil,
		},
		{"identified", Event{BecameIdentified: true}, []ActionKind{ActionRedirect}},
		{
			"several at once",
			Event{ScoringBefore: 0, ScoringAfter: 80, BecameIdentified: true},
			[]ActionKind{ActionLightboxContent, ActionRedirect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directives := ev.Evaluate(tt.event)
			if len(directives) != len(tt.expected) {
				t.Fatalf("Expected %d directives, got %d", len(tt.expected), len(directives))
			}
			for i, kind := range tt.expected {
				if directives[i].Action != kind {
					t.Errorf("Expected directive %d to be %s, got %s", i, kind, directives[i].Action)
				}
			}
		})
	}
}

func TestEvaluate_NoRulesReturnsEmptyList(t *testing.T) {
	ev := NewEvaluator(nil, pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace))
	directives := ev.Evaluate(Event{ScoringBefore: 0, ScoringAfter: 1000})
	if directives == nil || len(directives) != 0 {
		t.Errorf("Expected an empty, non-nil list, got %v", directives)
	}
}

func TestRedirectDirective(t *testing.T) {
	d := RedirectDirective("https://example.com/landing")
	if d.Action != ActionRedirect {
		t.Errorf("Expected redirect action, got %s", d.Action)
	}
	if d.Configuration["uri"] != "https://example.com/landing" {
		t.Errorf("Expected uri in configuration, got %v", d.Configuration)
	}
}

func TestLoad(t *testing.T) {
	rules, err := Load("")
	if err != nil || rules != nil {
		t.Errorf("Expected no rules for an empty path, got %v (%v)", rules, err)
	}

	path := filepath.Join(t.TempDir(), "workflow.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		t.Fatalf("Failed to write rules: %v", err)
	}
	rules, err = Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rules) != 3 {
		t.Errorf("Expected 3 rules, got %d", len(rules))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
