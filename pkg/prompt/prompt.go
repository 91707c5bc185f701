// Package prompt builds the system and user prompts for each round of a
// code-interpreter analysis.
package prompt

import (
	"fmt"
	"strings"

	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/table"
)

// DefaultPreviewChars bounds the dataset preview in the user prompt.
const DefaultPreviewChars = 2000

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the session history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the pair of messages sent to the model.
type Prompt struct {
	System string
	User   string
}

// Builder renders prompts. The zero value uses the defaults.
type Builder struct {
	// PreviewChars bounds the dataset preview. Zero means DefaultPreviewChars.
	PreviewChars int

	// Window is the number of most recent rounds rendered in full. Earlier
	// rounds collapse to one summary line each. Zero renders every round.
	Window int

	// System overrides the built-in system prompt.
	System string
}

// Build renders the prompt for the next round. history holds the turns of
// the completed rounds, an assistant reply followed by its feedback.
func (b *Builder) Build(input string, dataset *table.Table, history []Turn) Prompt {
	system := b.System
	if system == "" {
		system = SystemPrompt
	}

	var u strings.Builder
	fmt.Fprintf(&u, "The user's original request is: %q\n\n", input)
	b.writeDataset(&u, dataset)

	rounds := pairRounds(history)
	if len(rounds) == 0 {
		u.WriteString("Reply with your thought and the code for the first step, using the YAML envelope format.")
		return Prompt{System: system, User: u.String()}
	}

	u.WriteString("These steps have been executed so far:\n\n")
	full := 0
	if b.Window > 0 && len(rounds) > b.Window {
		full = len(rounds) - b.Window
	}
	for i, r := range rounds {
		if i < full {
			writeSummary(&u, i+1, r)
			continue
		}
		if i == full && full > 0 {
			u.WriteString("\n")
		}
		writeRound(&u, i+1, r)
	}
	u.WriteString("\n--- Next step ---\n")
	u.WriteString("Based on the history and the user's goal, reply with the envelope for the next step.")
	return Prompt{System: system, User: u.String()}
}

func (b *Builder) writeDataset(u *strings.Builder, dataset *table.Table) {
	if dataset == nil || dataset.NumColumns() == 0 {
		u.WriteString("No dataset is attached; `df` is an empty array.\n\n")
		return
	}
	limit := b.PreviewChars
	if limit <= 0 {
		limit = DefaultPreviewChars
	}
	fmt.Fprintf(u, "The dataset has %s. Columns: %s.\n", dataset.Shape(), strings.Join(dataset.Columns, ", "))
	u.WriteString("It is bound to `df` as an array of records. A preview of the records JSON:\n")
	u.WriteString("```json\n")
	u.WriteString(dataset.Preview(limit))
	u.WriteString("\n```\n\n")
}

// round is one assistant reply with the feedback that followed it.
type round struct {
	reply    string
	feedback string
	pending  bool
}

func pairRounds(history []Turn) []round {
	var rounds []round
	for _, t := range history {
		switch t.Role {
		case RoleAssistant:
			rounds = append(rounds, round{reply: t.Content, pending: true})
		case RoleUser:
			if n := len(rounds); n > 0 && rounds[n-1].pending {
				rounds[n-1].feedback = t.Content
				rounds[n-1].pending = false
			}
		}
	}
	return rounds
}

func writeRound(u *strings.Builder, n int, r round) {
	fmt.Fprintf(u, "--- Round %d ---\n", n)
	env, err := envelope.Parse(r.reply)
	if err != nil {
		u.WriteString("Reply (not a valid envelope):\n")
		u.WriteString(table.Truncate(r.reply, 500))
		u.WriteString("\n")
	} else {
		if !env.Thought.IsZero() {
			fmt.Fprintf(u, "Thought: %s\n", env.Thought)
		}
		fmt.Fprintf(u, "Action: %s\n", env.Action)
		if env.Code != "" {
			u.WriteString("Executed code:\n```javascript\n")
			u.WriteString(env.Code)
			u.WriteString("\n```\n")
		}
	}
	if r.feedback != "" {
		fmt.Fprintf(u, "Feedback: %s\n", r.feedback)
	}
}

func writeSummary(u *strings.Builder, n int, r round) {
	title := "(unparseable reply)"
	if env, err := envelope.Parse(r.reply); err == nil {
		title = env.Thought.Title
		if title == "" {
			title = table.Truncate(env.Thought.Text, 80)
		}
		if title == "" {
			title = string(env.Action)
		}
	}
	fmt.Fprintf(u, "Round %d (summary): %s -> %s\n", n, title, Classify(r.feedback))
}
