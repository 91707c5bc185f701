// Package engine turns an analysis request into a stored api.Analysis: it
// validates the request, routes the question to a tool (or honors the tool
// the caller named), runs the tool through the registry, and persists the
// outcome. Engine implements transport.AnalysisCreator; the store is
// optional.
package engine
