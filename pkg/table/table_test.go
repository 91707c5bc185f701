package table

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFromMatrix(t *testing.T) {
	tbl, err := FromMatrix([][]any{
		{"region", "", "sales", "sales"},
		{"north", 1, 10, int64(3)},
		{"south"},
	})
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}

	wantCols := []string{"region", "column_2", "sales", "sales_2"}
	if strings.Join(tbl.Columns, ",") != strings.Join(wantCols, ",") {
		t.Errorf("Columns = %v, want %v", tbl.Columns, wantCols)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", tbl.NumRows())
	}
	if got := tbl.Cell(0, 2); got != 10.0 {
		t.Errorf("Cell(0,2) = %#v, want float64 10", got)
	}
	if got := tbl.Cell(1, 3); got != nil {
		t.Errorf("short row should be padded with nil, got %#v", got)
	}
	if err := tbl.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFromMatrixHeaderNames(t *testing.T) {
	tests := []struct {
		name   string
		header []any
		want   []string
	}{
		{"unique", []any{"a", "b"}, []string{"a", "b"}},
		{"repeat", []any{"a", "a", "a"}, []string{"a", "a_2", "a_3"}},
		{"suffix already present", []any{"a", "a_2", "a"}, []string{"a", "a_2", "a_3"}},
		{"suffix after repeat", []any{"a", "a", "a_2"}, []string{"a", "a_3", "a_2"}},
		{"blank collides with explicit", []any{"column_2", nil}, []string{"column_2", "column_2_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := make([]any, len(tt.header))
			for i := range row {
				row[i] = i + 1
			}
			tbl, err := FromMatrix([][]any{tt.header, row})
			if err != nil {
				t.Fatalf("FromMatrix: %v", err)
			}
			if strings.Join(tbl.Columns, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Columns = %v, want %v", tbl.Columns, tt.want)
			}
			if rec := tbl.Records()[0]; len(rec) != len(tt.header) {
				t.Errorf("record has %d keys, want %d: %v", len(rec), len(tt.header), rec)
			}
		})
	}
}

func TestFromMatrixLongRow(t *testing.T) {
	_, err := FromMatrix([][]any{{"a"}, {1, 2}})
	if !errors.Is(err, ErrRaggedRow) {
		t.Fatalf("expected ErrRaggedRow, got %v", err)
	}
}

func TestFromMatrixEmpty(t *testing.T) {
	tbl, err := FromMatrix(nil)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if !tbl.Empty() || tbl.NumColumns() != 0 {
		t.Errorf("expected empty table, got %s", tbl.Shape())
	}
}

func TestFromRecords(t *testing.T) {
	tbl := FromRecords([]map[string]any{
		{"b": 1, "a": "x"},
		{"c": true},
	})
	if got := strings.Join(tbl.Columns, ","); got != "a,b,c" {
		t.Errorf("Columns = %s, want a,b,c", got)
	}
	if tbl.Cell(1, 0) != nil || tbl.Cell(1, 2) != true {
		t.Errorf("unexpected second row %v", tbl.Rows[1])
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCols string
		wantRows int
		wantErr  bool
	}{
		{"records keep key order", `[{"z":1,"a":2},{"a":3,"m":"x"}]`, "z,a,m", 2, false},
		{"matrix", `[["x","y"],[1,2],[3,4]]`, "x,y", 2, false},
		{"columnar", `{"columns":["x"],"rows":[[1],[2],[3]]}`, "x", 3, false},
		{"empty array", `[]`, "", 0, false},
		{"columnar ragged", `{"columns":["x","y"],"rows":[[1]]}`, "", 0, true},
		{"object without columns", `{"rows":[[1]]}`, "", 0, true},
		{"scalar", `42`, "", 0, true},
		{"array of scalars", `[1,2,3]`, "", 0, true},
		{"malformed", `[{"a":`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Decode([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got table %v", tbl)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := strings.Join(tbl.Columns, ","); got != tt.wantCols {
				t.Errorf("Columns = %q, want %q", got, tt.wantCols)
			}
			if tbl.NumRows() != tt.wantRows {
				t.Errorf("NumRows = %d, want %d", tbl.NumRows(), tt.wantRows)
			}
		})
	}
}

func TestDecodeMissingKeysAreNil(t *testing.T) {
	tbl, err := Decode([]byte(`[{"a":1},{"b":2}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tbl.Cell(0, 1) != nil || tbl.Cell(1, 0) != nil {
		t.Errorf("missing keys should decode as nil, got %v", tbl.Rows)
	}
	if tbl.Cell(1, 1) != 2.0 {
		t.Errorf("Cell(1,1) = %#v, want 2.0", tbl.Cell(1, 1))
	}
}

func TestRecordsJSONColumnOrder(t *testing.T) {
	tbl := &Table{
		Columns: []string{"zeta", "alpha"},
		Rows:    [][]any{{1.0, "a"}, {nil, "b"}},
	}
	data, err := tbl.RecordsJSON()
	if err != nil {
		t.Fatalf("RecordsJSON: %v", err)
	}
	want := `[{"zeta":1,"alpha":"a"},{"zeta":null,"alpha":"b"}]`
	if string(data) != want {
		t.Errorf("RecordsJSON = %s, want %s", data, want)
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !back.Equal(tbl) {
		t.Errorf("round trip changed table: %v", back)
	}
}

func TestRecords(t *testing.T) {
	tbl := &Table{Columns: []string{"a", "b"}, Rows: [][]any{{1.0, "x"}}}
	recs := tbl.Records()
	if len(recs) != 1 || recs[0]["a"] != 1.0 || recs[0]["b"] != "x" {
		t.Errorf("Records = %v", recs)
	}
}

func TestEqual(t *testing.T) {
	a := &Table{Columns: []string{"n"}, Rows: [][]any{{1}}}
	b := &Table{Columns: []string{"n"}, Rows: [][]any{{1.0}}}
	if !a.Equal(b) {
		t.Error("int 1 and float64 1 should compare equal")
	}

	c := &Table{Columns: []string{"n"}, Rows: [][]any{{"1"}}}
	if a.Equal(c) {
		t.Error("number 1 and string \"1\" should differ")
	}

	d := &Table{Columns: []string{"m"}, Rows: [][]any{{1.0}}}
	if b.Equal(d) {
		t.Error("different column names should differ")
	}

	var nilTable *Table
	if nilTable.Equal(a) || !nilTable.Equal(nil) {
		t.Error("nil handling is wrong")
	}
}

func TestClone(t *testing.T) {
	orig := &Table{
		Columns: []string{"a"},
		Rows:    [][]any{{map[string]any{"k": 1.0}}},
	}
	cp := orig.Clone()
	cp.Columns[0] = "changed"
	cp.Rows[0][0].(map[string]any)["k"] = 2.0

	if orig.Columns[0] != "a" {
		t.Error("Clone shares the column slice")
	}
	if orig.Rows[0][0].(map[string]any)["k"] != 1.0 {
		t.Error("Clone shares nested cell values")
	}
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 3, 3.0},
		{"uint8", uint8(7), 7.0},
		{"float32", float32(0.5), 0.5},
		{"time", ts, "2024-03-01T12:00:00Z"},
		{"bytes", []byte("hi"), "hi"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{1.5, 1.5, true},
		{" 42 ", 42, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{int32(-2), -2, true},
	}
	for _, tt := range tests {
		got, ok := Number(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Number(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
