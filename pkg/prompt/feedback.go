package prompt

import (
	"fmt"
	"strings"
)

// Outcome classifies the feedback of a round.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeError      Outcome = "error"
	OutcomeCorrective Outcome = "format error"
	OutcomeNone       Outcome = "no feedback"
)

const (
	successPrefix    = "Execution succeeded. Output:"
	errorPrefix      = "Execution failed. Error:"
	correctivePrefix = "Your reply could not be used:"
)

// SuccessFeedback is the user turn reporting a successful execution.
func SuccessFeedback(output string) string {
	return successPrefix + "\n" + output
}

// ErrorFeedback is the user turn reporting a failed execution. The failing
// code is quoted so the model can repair it.
func ErrorFeedback(errText, code string) string {
	return fmt.Sprintf("%s\n%s\nThe code that failed:\n```javascript\n%s\n```\nFix the problem and try again.",
		errorPrefix, errText, code)
}

// CorrectiveFeedback is the user turn sent when a reply is not a usable
// envelope.
func CorrectiveFeedback(reason string) string {
	return correctivePrefix + " " + reason + "\n" +
		"Respond with exactly one YAML envelope in a ```yaml fence containing at least " +
		"`action` (generate_code, generate_chart or analysis_complete), plus `code` for the code actions."
}

// Classify reports which kind of feedback text is.
func Classify(feedback string) Outcome {
	switch {
	case strings.HasPrefix(feedback, successPrefix):
		return OutcomeSuccess
	case strings.HasPrefix(feedback, errorPrefix):
		return OutcomeError
	case strings.HasPrefix(feedback, correctivePrefix):
		return OutcomeCorrective
	case feedback == "":
		return OutcomeNone
	default:
		return OutcomeSuccess
	}
}
