package table

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to previews cut short by their budget.
const TruncationMarker = "...(truncated)"

// Preview renders the records JSON of the table, cut to at most maxChars
// runes on a rune boundary. A truncated preview ends with TruncationMarker.
// maxChars <= 0 disables the limit.
func (t *Table) Preview(maxChars int) string {
	if t == nil {
		return "[]"
	}
	data, err := t.RecordsJSON()
	if err != nil {
		return fmt.Sprintf("<unrenderable table: %v>", err)
	}
	return Truncate(string(data), maxChars)
}

// Truncate cuts s to maxChars runes and appends TruncationMarker when
// anything was dropped.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// Markdown renders at most maxRows rows as a GitHub-style table.
// maxRows <= 0 renders every row.
func (t *Table) Markdown(maxRows int) string {
	if t == nil || len(t.Columns) == 0 {
		return "(empty table)"
	}

	var b strings.Builder
	b.WriteString("|")
	for _, c := range t.Columns {
		b.WriteString(" ")
		b.WriteString(escapeMarkdown(c))
		b.WriteString(" |")
	}
	b.WriteString("\n|")
	for range t.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	rows := len(t.Rows)
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
	}
	for i := 0; i < rows; i++ {
		b.WriteString("|")
		for j := range t.Columns {
			b.WriteString(" ")
			b.WriteString(escapeMarkdown(FormatCell(t.Cell(i, j))))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	if rows < len(t.Rows) {
		fmt.Fprintf(&b, "\n(%d more rows not shown)\n", len(t.Rows)-rows)
	}
	return b.String()
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// FormatCell renders a cell for human display. Whole numbers print without
// a decimal point.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return fmt.Sprintf("%.0f", x)
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// ColumnProfile summarizes one column.
type ColumnProfile struct {
	Name    string `json:"name"`
	Numeric bool   `json:"numeric"`
	// NonNull counts values that are neither nil nor blank strings.
	NonNull int `json:"non_null"`
	// Stats is set for numeric columns only.
	Stats *Stats `json:"stats,omitempty"`
}

// Stats holds descriptive statistics over the numeric values of a column.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// numericShare is the fraction of non-null values that must parse as numbers
// for a column to count as numeric.
const numericShare = 0.8

// Profile classifies each column as numeric or text and computes statistics
// for the numeric ones.
func (t *Table) Profile() []ColumnProfile {
	if t == nil {
		return nil
	}
	out := make([]ColumnProfile, len(t.Columns))
	for j, name := range t.Columns {
		p := ColumnProfile{Name: name}
		var nums []float64
		for i := range t.Rows {
			v := t.Cell(i, j)
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			p.NonNull++
			if f, ok := Number(v); ok {
				nums = append(nums, f)
			}
		}
		if p.NonNull > 0 && float64(len(nums)) > float64(p.NonNull)*numericShare {
			p.Numeric = true
			p.Stats = computeStats(nums)
		}
		out[j] = p
	}
	return out
}

// NumericColumns returns the names of the numeric columns.
func NumericColumns(profiles []ColumnProfile) []string {
	var names []string
	for _, p := range profiles {
		if p.Numeric {
			names = append(names, p.Name)
		}
	}
	return names
}

// TextColumns returns the names of the non-numeric columns.
func TextColumns(profiles []ColumnProfile) []string {
	var names []string
	for _, p := range profiles {
		if !p.Numeric {
			names = append(names, p.Name)
		}
	}
	return names
}

// computeStats uses the sample standard deviation; a single value has zero
// deviation.
func computeStats(nums []float64) *Stats {
	s := &Stats{Count: len(nums), Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, f := range nums {
		sum += f
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
	}
	s.Mean = sum / float64(len(nums))
	if len(nums) > 1 {
		var sq float64
		for _, f := range nums {
			d := f - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(nums)-1))
	}
	return s
}
