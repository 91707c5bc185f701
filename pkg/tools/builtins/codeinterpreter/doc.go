// Package codeinterpreter provides the tools backed by the multi-round
// agent loop: code_interpreter for open-ended analysis and transformation,
// and advanced_analytics, which seeds the loop with descriptive statistics.
package codeinterpreter
