// Package transport defines the handler interfaces and middleware chain
// shared by the HTTP and MCP front ends.
//
// AnalysisCreator is the contract between a front end and the analysis
// engine; AnalysisWriter lets the engine emit progress events or a single
// finished analysis without knowing the wire format. AnalysisStore is the
// persistence contract implemented by pkg/storage/memory and
// pkg/storage/postgres.
//
// Middleware wraps an AnalysisCreator with panic recovery, request IDs
// (X-Request-ID) and structured request logging.
package transport
