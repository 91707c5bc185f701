// Package provider defines the chat-completion collaborator used by the
// router, the built-in tools and the agent loop. Adapters (for example
// openaicompat) translate these types to their backend protocol, so callers
// only ever see Request, Response and StreamEvent.
package provider
