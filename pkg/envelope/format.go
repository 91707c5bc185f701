package envelope

import (
	"strings"

	"gopkg.in/yaml.v3"
)

type formatted struct {
	Version     int      `yaml:"version"`
	Thought     *Thought `yaml:"thought,omitempty"`
	Action      Action   `yaml:"action"`
	Code        string   `yaml:"code,omitempty"`
	Continue    bool     `yaml:"continue"`
	FinalAnswer string   `yaml:"final_answer,omitempty"`
	ChartSpec   any      `yaml:"chart_spec,omitempty"`
	NextSteps   []string `yaml:"next_steps,omitempty"`
}

// Format renders env as a canonical ```yaml fenced block. Parse(Format(env))
// yields an Envelope equal to env once whitespace is trimmed.
func Format(env *Envelope) string {
	f := formatted{
		Version:     env.Version,
		Action:      env.Action,
		Code:        env.Code,
		Continue:    env.Continue,
		FinalAnswer: env.FinalAnswer,
		ChartSpec:   env.ChartSpec,
		NextSteps:   env.NextSteps,
	}
	if f.Version == 0 {
		f.Version = CurrentVersion
	}
	if !env.Thought.IsZero() {
		t := env.Thought
		f.Thought = &t
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		// Only unmarshalable chart specs reach here; drop the spec rather
		// than emit a broken envelope.
		f.ChartSpec = nil
		b.Reset()
		enc = yaml.NewEncoder(&b)
		enc.SetIndent(2)
		_ = enc.Encode(f)
	}
	_ = enc.Close()
	return "```yaml\n" + b.String() + "```"
}
