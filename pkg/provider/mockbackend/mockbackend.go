// Package mockbackend is a deterministic Chat Completions server for
// end-to-end tests. It recognizes the prompts of the intent router, the
// code-interpreter loop, the chart tool and the Q&A tools, and answers each
// with a fixed, well-formed reply, streamed or not.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/provider/openaicompat"
	"github.com/rhuss/tabula/pkg/router"
)

const defaultModel = "mock-model"

// Handler serves POST /v1/chat/completions, GET /v1/models and GET /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", completions)
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": defaultModel, "object": "model", "owned_by": "tabula-mock"}},
		})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func completions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`)
		return
	}
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	system, user := lastTurns(req.Messages)
	text := Reply(system, user)
	if req.Stream {
		stream(w, model, text)
		return
	}

	writeJSON(w, openaicompat.ChatCompletion{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []openaicompat.ChatChoice{{
			Message:      &openaicompat.ChatMessage{Role: "assistant", Content: text},
			FinishReason: ptr("stop"),
		}},
		Usage: usage(len(pieces(text, 16))),
	})
}

// lastTurns returns the first system message and the last user message.
func lastTurns(msgs []openaicompat.ChatMessage) (system, user string) {
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if system == "" {
				system = openaicompat.ExtractContentString(m.Content)
			}
		case "user":
			user = openaicompat.ExtractContentString(m.Content)
		}
	}
	return system, user
}

// Reply picks the canned answer for whichever component sent the system
// prompt.
func Reply(system, user string) string {
	system = strings.ToLower(system)
	switch {
	case strings.Contains(system, "intent classifier"):
		return classifierReply(user)
	case strings.Contains(system, "code interpreter"):
		return agentReply(user)
	case strings.Contains(system, "data visualization"):
		return chartReply
	default:
		return "Mock answer: " + firstLine(user)
	}
}

// classifierReply answers the router with the keyword decision for the
// question line of the prompt.
func classifierReply(prompt string) string {
	question := prompt
	if _, rest, ok := strings.Cut(prompt, "User question: "); ok {
		question = firstLine(rest)
	}
	data, _ := json.Marshal(router.Keywords(question))
	return string(data)
}

const sumCode = `const sums = {};
for (const c of columns) {
  const vals = df.map(r => Number(r[c])).filter(v => !Number.isNaN(v));
  if (vals.length > 0) sums[c] = vals.reduce((a, b) => a + b, 0);
}
return { rows: df.length, sums: sums };`

const chartCode = `const label = columns[0];
const value = columns.find(c => df.every(r => !Number.isNaN(Number(r[c])))) || columns[1];
return {
  type: "bar",
  xAxis: { type: "category", data: df.map(r => String(r[label])) },
  yAxis: { type: "value" },
  series: [{ type: "bar", name: value, data: df.map(r => Number(r[value])) }]
};`

// agentReply plays one code-interpreter round: code first, then a final
// answer once an execution result is in the transcript.
func agentReply(prompt string) string {
	question := ""
	if _, rest, ok := strings.Cut(prompt, "The user's original request is: "); ok {
		if q, err := strconv.Unquote(firstLine(rest)); err == nil {
			question = q
		}
	}

	if _, output, ok := strings.Cut(prompt, "Execution succeeded. Output:"); ok {
		return envelope.Format(&envelope.Envelope{
			Thought:     envelope.Thought{Text: "The computation finished."},
			Action:      envelope.ActionAnalysisComplete,
			FinalAnswer: "Result: " + firstLine(strings.TrimSpace(output)),
		})
	}

	env := &envelope.Envelope{
		Thought:  envelope.Thought{Title: "Compute", Text: "Sum every numeric column."},
		Action:   envelope.ActionGenerateCode,
		Code:     sumCode,
		Continue: true,
	}
	if strings.Contains(strings.ToLower(question), "chart") {
		env.Thought = envelope.Thought{Title: "Chart", Text: "Plot the first numeric column."}
		env.Action = envelope.ActionGenerateChart
		env.Code = chartCode
	}
	return envelope.Format(env)
}

const chartReply = "Here is the chart.\n```json\n" +
	`{"title":{"text":"Mock chart"},"xAxis":{"type":"category","data":["a","b"]},"yAxis":{"type":"value"},"series":[{"type":"bar","data":[1,2]}]}` +
	"\n```"

// stream writes text as 16-rune deltas: a role chunk, the content, a
// finish chunk with usage, then [DONE].
func stream(w http.ResponseWriter, model, text string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	emit := func(c openaicompat.ChatCompletion) {
		c.ID, c.Object, c.Model = "chatcmpl-mock", "chat.completion.chunk", model
		data, _ := json.Marshal(c)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	delta := func(m openaicompat.ChatMessage, finish *string) []openaicompat.ChatChoice {
		return []openaicompat.ChatChoice{{Delta: &m, FinishReason: finish}}
	}

	emit(openaicompat.ChatCompletion{Choices: delta(openaicompat.ChatMessage{Role: "assistant"}, nil)})
	parts := pieces(text, 16)
	for _, p := range parts {
		emit(openaicompat.ChatCompletion{Choices: delta(openaicompat.ChatMessage{Content: p}, nil)})
	}
	emit(openaicompat.ChatCompletion{
		Choices: delta(openaicompat.ChatMessage{}, ptr("stop")),
		Usage:   usage(len(parts)),
	})

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func usage(completion int) *openaicompat.ChatUsage {
	return &openaicompat.ChatUsage{PromptTokens: 10, CompletionTokens: completion, TotalTokens: 10 + completion}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func ptr[T any](v T) *T { return &v }

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// pieces splits s into chunks of at most n runes.
func pieces(s string, n int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > n {
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
