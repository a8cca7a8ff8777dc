package models

import "strings"

// Field is one forwarded cell: the column header and the cell value rendered as text.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RowInput is the ordered subset of a row's cells forwarded to the agent.
// It is built once per row and only read afterwards.
type RowInput struct {
	fields []Field
}

func NewRowInput(fields ...Field) RowInput {
	copied := make([]Field, len(fields))
	copy(copied, fields)
	return RowInput{fields: copied}
}

func (r RowInput) Len() int {
	return len(r.fields)
}

func (r RowInput) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r RowInput) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Name
	}
	return keys
}

func (r RowInput) Get(name string) (string, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Message renders the input as "key1: value1, key2: value2" in field order, without escaping.
func (r RowInput) Message() string {
	parts := make([]string, len(r.fields))
	for i, f := range r.fields {
		parts[i] = f.Name + ": " + f.Value
	}
	return strings.Join(parts, ", ")
}

// Row is a raw spreadsheet data row. Number is the 1-based sheet row; row 1 holds the headers.
type Row struct {
	Number int     `json:"number"`
	Fields []Field `json:"fields"`
}

// Project keeps the cells whose header is in columns, in the row's own order.
func (r Row) Project(columns []string) RowInput {
	wanted := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		wanted[c] = struct{}{}
	}
	projected := make([]Field, 0, len(columns))
	for _, f := range r.Fields {
		if _, ok := wanted[f.Name]; ok {
			projected = append(projected, f)
		}
	}
	return RowInput{fields: projected}
}

// RowRange selects sheet rows by number, both ends inclusive. The zero value selects every row.
type RowRange struct {
	Start int `json:"start_row"`
	End   int `json:"end_row"`
}

func (r RowRange) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

func (r RowRange) Contains(number int) bool {
	if r.IsZero() {
		return true
	}
	if r.Start > 0 && number < r.Start {
		return false
	}
	if r.End > 0 && number > r.End {
		return false
	}
	return true
}

// RowOutcome pairs a processed row with what the agent produced for it.
type RowOutcome struct {
	RowNumber int       `json:"row_number"`
	Input     RowInput  `json:"-"`
	Result    RowResult `json:"result"`
}
