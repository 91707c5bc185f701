// Package api defines the wire types shared by the tabula transports:
// analysis requests, persisted analysis records, progress events, error
// types, and ID generation.
//
// Core types:
//   - [AnalyzeRequest]: a question plus the table it is asked about
//   - [Analysis]: the stored outcome of one analysis request
//   - [ProgressEvent]: a lifecycle event emitted while an analysis runs
//   - [APIError]: structured error with type, code, param, and message
//
// The package performs no I/O. All types produce JSON used verbatim by the
// HTTP and MCP transports.
package api
