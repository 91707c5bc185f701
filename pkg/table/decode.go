package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotTabular is returned by Decode when a JSON value has no table shape.
var ErrNotTabular = errors.New("value is not tabular")

// Decode converts a JSON value into a table. Three shapes are accepted:
//
//   - an array of objects, with columns in order of first appearance
//   - an array of arrays, where the first array is the header
//   - an object {"columns": [...], "rows": [[...], ...]}
func Decode(data []byte) (*Table, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNotTabular
	}

	switch data[0] {
	case '{':
		return decodeColumnar(data)
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("decoding table: %w", err)
		}
		if len(elems) == 0 {
			return &Table{Columns: []string{}, Rows: [][]any{}}, nil
		}
		first := bytes.TrimSpace(elems[0])
		if len(first) > 0 && first[0] == '[' {
			return decodeMatrix(data)
		}
		return decodeRecords(data)
	default:
		return nil, ErrNotTabular
	}
}

func decodeColumnar(data []byte) (*Table, error) {
	var raw struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	if raw.Columns == nil {
		return nil, fmt.Errorf("%w: missing columns", ErrNotTabular)
	}
	t := &Table{Columns: raw.Columns, Rows: make([][]any, len(raw.Rows))}
	for i, row := range raw.Rows {
		r := make([]any, len(row))
		for j, v := range row {
			r[j] = Normalize(v)
		}
		t.Rows[i] = r
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeMatrix(data []byte) (*Table, error) {
	var matrix [][]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&matrix); err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	return FromMatrix(matrix)
}

// decodeRecords walks the token stream so that key order survives.
func decodeRecords(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	t := &Table{Columns: []string{}}
	index := make(map[string]int)
	var records []map[string]any

	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		rec := make(map[string]any)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("decoding table: %w", err)
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected token %v", ErrNotTabular, tok)
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("decoding table column %q: %w", key, err)
			}
			if _, seen := index[key]; !seen {
				index[key] = len(t.Columns)
				t.Columns = append(t.Columns, key)
			}
			rec[key] = Normalize(v)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	t.Rows = make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(t.Columns))
		for k, v := range rec {
			row[index[k]] = v
		}
		t.Rows[i] = row
	}
	return t, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding table: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrNotTabular, want, tok)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
