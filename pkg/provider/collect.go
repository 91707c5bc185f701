package provider

import (
	"context"
	"strings"
)

// Collect drains a stream into the same Response that Complete would have
// produced. Deltas are concatenated in order. An error event, or the
// context ending before the channel closes, aborts the collection.
func Collect(ctx context.Context, ch <-chan StreamEvent) (*Response, error) {
	var (
		sb   strings.Builder
		resp Response
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				resp.Content = sb.String()
				return &resp, nil
			}
			switch ev.Type {
			case StreamEventTextDelta:
				sb.WriteString(ev.Delta)
			case StreamEventDone:
				if ev.FinishReason != "" {
					resp.FinishReason = ev.FinishReason
				}
				if ev.Usage != nil {
					resp.Usage = *ev.Usage
				}
			case StreamEventError:
				return nil, ev.Err
			}
			if ev.Model != "" {
				resp.Model = ev.Model
			}
		}
	}
}

// StreamOnly adapts a ChatModel so that Complete is served by Stream
// followed by Collect. Backends that only stream reliably use this.
type StreamOnly struct {
	ChatModel
}

// Complete streams the request and collects the result.
func (s StreamOnly) Complete(ctx context.Context, req *Request) (*Response, error) {
	ch, err := s.ChatModel.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return Collect(ctx, ch)
}
