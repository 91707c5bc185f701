// Package tools defines the Tool contract that every analysis capability
// implements (plain Q&A, charts, the code interpreter) together with the
// input and result types exchanged with the engine.
//
// Tools are collected in a registry (package tools/registry) and selected
// per request by the intent router.
package tools
