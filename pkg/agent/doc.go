// Package agent runs the multi-round code-interpreter loop.
//
// Each round builds a prompt from the question, the working dataset and the
// history, asks the chat model for an action envelope, and acts on it:
// generate_code runs a fragment in the sandbox and feeds the result back,
// generate_chart runs a fragment whose return value becomes the chart, and
// analysis_complete ends the session with a report. Replies that are not
// usable envelopes get one corrective turn and consume the round.
package agent
