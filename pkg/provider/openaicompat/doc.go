// Package openaicompat implements provider.ChatModel against any backend
// that speaks the OpenAI Chat Completions protocol (vLLM, LiteLLM, Ollama,
// OpenAI itself). It covers blocking completions and SSE streaming.
package openaicompat
