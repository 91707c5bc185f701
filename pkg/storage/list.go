package storage

// Page size limits for list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListLimit clamps a requested page size to (0, MaxListLimit], using
// DefaultListLimit for unset values.
func ListLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}
