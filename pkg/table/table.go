// Package table holds the tabular dataset that analyses operate on: an
// ordered list of column names plus rows of JSON-compatible cells.
//
// Cells are normalized on construction so that a table survives a JSON round
// trip unchanged: numbers become float64, times become RFC 3339 strings, and
// nested maps and slices are normalized recursively.
package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is an immutable snapshot of a dataset. Callers that need to modify
// one should Clone it first.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ErrRaggedRow is returned when a row's width does not match the header.
var ErrRaggedRow = errors.New("row width does not match column count")

// FromMatrix builds a table from a header row followed by data rows, the way
// a spreadsheet selection arrives. Blank header cells are named column_N and
// duplicate names get a numeric suffix. Short rows are padded with nil; long
// rows are an error.
func FromMatrix(matrix [][]any) (*Table, error) {
	if len(matrix) == 0 {
		return &Table{Columns: []string{}, Rows: [][]any{}}, nil
	}

	t := &Table{Columns: headerNames(matrix[0]), Rows: make([][]any, 0, len(matrix)-1)}
	for i, src := range matrix[1:] {
		if len(src) > len(t.Columns) {
			return nil, fmt.Errorf("row %d: %w (%d > %d)", i+1, ErrRaggedRow, len(src), len(t.Columns))
		}
		row := make([]any, len(t.Columns))
		for j, cell := range src {
			row[j] = Normalize(cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// headerNames stringifies the header row. Blank headers become column_N.
// Repeats get the first _2, _3, ... suffix that no header uses, so every
// column keeps its own key in Records.
func headerNames(header []any) []string {
	raw := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		if h != nil {
			raw[i] = fmt.Sprint(Normalize(h))
		}
		if raw[i] == "" {
			raw[i] = "column_" + strconv.Itoa(i+1)
		}
		taken[raw[i]] = true
	}

	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, name := range raw {
		if used[name] {
			for n := 2; ; n++ {
				candidate := name + "_" + strconv.Itoa(n)
				if !taken[candidate] {
					name = candidate
					break
				}
			}
			taken[name] = true
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// FromRecords builds a table from decoded records. Go maps carry no key
// order, so columns follow first appearance with each record's keys taken in
// sorted order. Use Decode to keep the order of a JSON document.
func FromRecords(records []map[string]any) *Table {
	t := &Table{Columns: []string{}, Rows: make([][]any, 0, len(records))}
	index := make(map[string]int)
	for _, rec := range records {
		for _, k := range sortedKeys(rec) {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}
	for _, rec := range records {
		row := make([]any, len(t.Columns))
		for k, v := range rec {
			row[index[k]] = Normalize(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool {
	return t.NumRows() == 0
}

// Shape describes the table as "R rows × C columns".
func (t *Table) Shape() string {
	return fmt.Sprintf("%d rows × %d columns", t.NumRows(), t.NumColumns())
}

// Validate checks that every row is as wide as the header.
func (t *Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d: %w (%d != %d)", i, ErrRaggedRow, len(row), len(t.Columns))
		}
	}
	return nil
}

// Cell returns the value at row i, column j, or nil when out of range.
func (t *Table) Cell(i, j int) any {
	if i < 0 || i >= len(t.Rows) || j < 0 || j >= len(t.Rows[i]) {
		return nil
	}
	return t.Rows[i][j]
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Records projects the table to one map per row.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			rec[c] = t.Cell(i, j)
		}
		out[i] = rec
	}
	return out
}

// RecordsJSON encodes the table as a JSON array of objects whose keys appear
// in column order.
func (t *Table) RecordsJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range t.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(t.Cell(i, j))
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, c, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Columns: append([]string{}, t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		r := make([]any, len(row))
		for j, v := range row {
			r[j] = cloneValue(v)
		}
		c.Rows[i] = r
	}
	return c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Equal reports whether two tables have the same columns and the same cells.
// Cells compare by their canonical JSON encoding, so 1 and 1.0 are equal.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Columns) != len(o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Columns {
			if !cellEqual(t.Cell(i, j), o.Cell(i, j)) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b any) bool {
	ja, errA := json.Marshal(Normalize(a))
	jb, errB := json.Marshal(Normalize(b))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Normalize converts a cell value to its JSON-compatible form.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case []byte:
		return string(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = Normalize(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = Normalize(e)
		}
		return s
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Number returns the numeric value of a cell. Strings are parsed after
// trimming; booleans and nil are not numbers.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		n := Normalize(v)
		if f, ok := n.(float64); ok {
			return f, true
		}
		return 0, false
	}
}
