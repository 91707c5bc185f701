package envelope

import (
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	yamlFence = regexp.MustCompile("(?s)```(?:yaml|yml)[ \\t]*\\r?\\n(.*?)```")
	// JSON is valid YAML, so a json fence or a bare fence also works.
	anyFence = regexp.MustCompile("(?s)```(?:json)?[ \\t]*\\r?\\n(.*?)```")
)

// wireEnvelope is the decoded YAML shape before normalization.
type wireEnvelope struct {
	Version     yaml.Node `yaml:"version"`
	Thought     yaml.Node `yaml:"thought"`
	Reasoning   string    `yaml:"reasoning"`
	Action      string    `yaml:"action"`
	Code        string    `yaml:"code"`
	Continue    *bool     `yaml:"continue"`
	FinalAnswer string    `yaml:"final_answer"`
	FinalReport string    `yaml:"final_report"`
	ChartSpec   any       `yaml:"chart_spec"`
	NextSteps   yaml.Node `yaml:"next_steps"`
}

// Extract returns the payload of the first yaml fence, else the first bare
// or json fence, else the whole trimmed text.
func Extract(raw string) string {
	if m := yamlFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyFence.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// Parse decodes a model reply into an Envelope. Any failure is a *ParseError.
// Parsing is deterministic: the same text always yields an equal Envelope.
func Parse(raw string) (*Envelope, error) {
	payload := Extract(raw)
	if payload == "" {
		return nil, &ParseError{Reason: "empty reply"}
	}

	var w wireEnvelope
	if err := yaml.Unmarshal([]byte(payload), &w); err != nil {
		return nil, &ParseError{Reason: "invalid YAML", Err: err}
	}

	action := normalizeAction(w.Action)
	if action == "" {
		return nil, &ParseError{Reason: "missing action"}
	}

	version, err := parseVersion(&w.Version)
	if err != nil {
		return nil, err
	}

	thought, err := parseThought(&w.Thought)
	if err != nil {
		return nil, err
	}
	if thought.IsZero() && w.Reasoning != "" {
		thought.Text = strings.TrimSpace(w.Reasoning)
	}

	nextSteps, err := parseSteps(&w.NextSteps)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Version:     version,
		Thought:     thought,
		Action:      action,
		Code:        strings.TrimSpace(w.Code),
		Continue:    action != ActionAnalysisComplete,
		FinalAnswer: strings.TrimSpace(w.FinalAnswer),
		ChartSpec:   w.ChartSpec,
		NextSteps:   nextSteps,
	}
	if env.FinalAnswer == "" {
		env.FinalAnswer = strings.TrimSpace(w.FinalReport)
	}
	if w.Continue != nil {
		env.Continue = *w.Continue
	}
	return env, nil
}

func parseVersion(n *yaml.Node) (int, error) {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return CurrentVersion, nil
	}
	if n.Kind != yaml.ScalarNode {
		return 0, &ParseError{Reason: "version must be a scalar"}
	}
	major, _, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(n.Value), "v"), ".")
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0, &ParseError{Reason: "invalid version " + strconv.Quote(n.Value), Err: err}
	}
	if v != CurrentVersion {
		return 0, &ParseError{Reason: "unsupported version " + strconv.Quote(n.Value)}
	}
	return v, nil
}

// parseThought accepts plain text, a title/text mapping, or text that itself
// holds a title/text mapping.
func parseThought(n *yaml.Node) (Thought, error) {
	switch n.Kind {
	case 0:
		return Thought{}, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return Thought{}, nil
		}
		text := strings.TrimSpace(n.Value)
		if t, ok := nestedThought(text); ok {
			return t, nil
		}
		return Thought{Text: text}, nil
	case yaml.MappingNode:
		var t Thought
		if err := n.Decode(&t); err != nil {
			return Thought{}, &ParseError{Reason: "invalid thought", Err: err}
		}
		t.Title = strings.TrimSpace(t.Title)
		t.Text = strings.TrimSpace(t.Text)
		return t, nil
	default:
		return Thought{}, &ParseError{Reason: "thought must be text or a title/text mapping"}
	}
}

func nestedThought(s string) (Thought, bool) {
	if !strings.Contains(s, ":") {
		return Thought{}, false
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(s), &m); err != nil {
		return Thought{}, false
	}
	title, hasTitle := m["title"].(string)
	text, hasText := m["text"].(string)
	if !hasTitle && !hasText {
		return Thought{}, false
	}
	return Thought{Title: strings.TrimSpace(title), Text: strings.TrimSpace(text)}, true
}

func parseSteps(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" || strings.TrimSpace(n.Value) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(n.Value)}, nil
	case yaml.SequenceNode:
		var steps []string
		if err := n.Decode(&steps); err != nil {
			return nil, &ParseError{Reason: "invalid next_steps", Err: err}
		}
		return steps, nil
	default:
		return nil, &ParseError{Reason: "next_steps must be text or a list"}
	}
}
