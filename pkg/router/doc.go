// Package router decides which analysis tool should answer a question.
//
// A request without table data always goes to general_qa without a model
// call. Otherwise the chat model classifies the question against the tool
// menu. When the model fails or replies with something unusable, a keyword
// classifier takes over, so Route always returns a decision.
package router
