package api

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxQuestionChars int
	MaxRows          int
	MaxColumns       int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxQuestionChars: 8000,
		MaxRows:          100000,
		MaxColumns:       512,
	}
}

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateAnalyzeRequest checks an AnalyzeRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request is valid.
func ValidateAnalyzeRequest(req *AnalyzeRequest, cfg ValidationConfig) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request body is required")
	}

	if len(req.Question) == 0 {
		return NewInvalidRequestError("question", "question is required")
	}

	if cfg.MaxQuestionChars > 0 && utf8.RuneCountInString(req.Question) > cfg.MaxQuestionChars {
		return NewInvalidRequestError("question",
			fmt.Sprintf("question exceeds maximum of %d characters", cfg.MaxQuestionChars))
	}

	if req.Tool != "" && !toolNamePattern.MatchString(req.Tool) {
		return NewInvalidRequestError("tool", fmt.Sprintf("invalid tool name %q", req.Tool))
	}

	if req.Table == nil {
		return nil
	}

	if len(req.Table.Columns) == 0 && len(req.Table.Rows) > 0 {
		return NewInvalidRequestError("table.columns", "columns are required when rows are present")
	}

	if cfg.MaxColumns > 0 && len(req.Table.Columns) > cfg.MaxColumns {
		return NewInvalidRequestError("table.columns",
			fmt.Sprintf("table exceeds maximum of %d columns", cfg.MaxColumns))
	}

	if cfg.MaxRows > 0 && len(req.Table.Rows) > cfg.MaxRows {
		return NewInvalidRequestError("table.rows",
			fmt.Sprintf("table exceeds maximum of %d rows", cfg.MaxRows))
	}

	if err := req.Table.Validate(); err != nil {
		return NewInvalidRequestError("table.rows", err.Error())
	}

	return nil
}
