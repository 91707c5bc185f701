package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const analysisIDPrefix = "an_"

var analysisIDPattern = regexp.MustCompile(`^an_[0-9a-f]{32}$`)

// NewAnalysisID generates a new analysis ID: "an_" followed by a random
// UUID in compact hex form.
func NewAnalysisID() string {
	return analysisIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateAnalysisID reports whether id has the shape produced by NewAnalysisID.
func ValidateAnalysisID(id string) bool {
	return analysisIDPattern.MatchString(id)
}
