package openaicompat

import (
	"strings"

	"github.com/rhuss/tabula/pkg/provider"
)

// TranslateToChat converts a provider.Request into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateToChat(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		N:           1,
		Stream:      req.Stream,
	}

	// When streaming, enable usage reporting in the stream.
	if req.Stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return cr
}

// TranslateResponse converts a full completion into a provider.Response.
// Only choices[0] is used. A response without choices yields empty content.
func TranslateResponse(resp *ChatCompletion) *provider.Response {
	pr := &provider.Response{Model: resp.Model}
	if u := translateUsage(resp.Usage); u != nil {
		pr.Usage = *u
	}
	if len(resp.Choices) == 0 {
		return pr
	}
	choice := resp.Choices[0]
	if choice.FinishReason != nil {
		pr.FinishReason = *choice.FinishReason
	}
	if choice.Message != nil {
		pr.Content = ExtractContentString(choice.Message.Content)
	}
	return pr
}

// ExtractContentString returns message content as plain text. Content may
// be a string or an array of {type:"text", text} parts.
func ExtractContentString(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, part := range c {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				sb.WriteString(text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}
