package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
)

// ParseSSEStream reads Chat Completions SSE chunks from the given reader,
// translates each chunk to StreamEvent values, and sends them on ch.
// The channel is NOT closed by this function; the caller is responsible
// for closing it.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Malformed chunks are logged and skipped. Context cancellation stops
// reading immediately.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.StreamEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// Empty lines and comments (":") carry no data.
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)

		if payload == "[DONE]" {
			return
		}

		var chunk ChatCompletion
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed SSE chunk",
				"error", err.Error(),
				"data", debug.Truncate(payload, 200),
			)
			continue
		}

		if !send(ctx, ch, TranslateChunk(&chunk)...) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		send(ctx, ch, provider.StreamEvent{
			Type: provider.StreamEventError,
			Err:  api.NewModelError("SSE stream read error: " + err.Error()),
		})
	}
}

// TranslateChunk converts one streamed chunk into zero or more
// StreamEvent values.
func TranslateChunk(chunk *ChatCompletion) []provider.StreamEvent {
	// A usage-only final chunk (stream_options.include_usage).
	if len(chunk.Choices) == 0 {
		if chunk.Usage == nil {
			return nil
		}
		return []provider.StreamEvent{{
			Type:  provider.StreamEventDone,
			Model: chunk.Model,
			Usage: translateUsage(chunk.Usage),
		}}
	}

	choice := chunk.Choices[0]
	var events []provider.StreamEvent

	if choice.Delta != nil {
		if text := ExtractContentString(choice.Delta.Content); text != "" {
			events = append(events, provider.StreamEvent{
				Type:  provider.StreamEventTextDelta,
				Delta: text,
				Model: chunk.Model,
			})
		}
	}

	if choice.FinishReason != nil {
		events = append(events, provider.StreamEvent{
			Type:         provider.StreamEventDone,
			FinishReason: *choice.FinishReason,
			Model:        chunk.Model,
			Usage:        translateUsage(chunk.Usage),
		})
	}
	return events
}

func translateUsage(u *ChatUsage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func send(ctx context.Context, ch chan<- provider.StreamEvent, events ...provider.StreamEvent) bool {
	for _, ev := range events {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
