package api

import (
	"strings"
	"testing"
)

func TestNewAnalysisID(t *testing.T) {
	id := NewAnalysisID()
	if !strings.HasPrefix(id, "an_") {
		t.Fatalf("id %q missing an_ prefix", id)
	}
	if !ValidateAnalysisID(id) {
		t.Errorf("ValidateAnalysisID(%q) = false, want true", id)
	}
	if other := NewAnalysisID(); other == id {
		t.Errorf("two calls returned the same id %q", id)
	}
}

func TestValidateAnalysisID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"an_0123456789abcdef0123456789abcdef", true},
		{"an_0123456789ABCDEF0123456789abcdef", false},
		{"resp_0123456789abcdef0123456789abcdef", false},
		{"an_short", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateAnalysisID(tt.id); got != tt.want {
			t.Errorf("ValidateAnalysisID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
