package models

import (
	"reflect"
	"testing"
)

func TestRowInputMessage(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		want   string
	}{
		{"empty", nil, ""},
		{"single", []Field{{Name: "Certificate", Value: "CE"}}, "Certificate: CE"},
		{"ordered", []Field{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}}, "b: 2, a: 1"},
		{"unescaped", []Field{{Name: "Note", Value: "x, y: z"}}, "Note: x, y: z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRowInput(tt.fields...).Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRowInputIsImmutable(t *testing.T) {
	fields := []Field{{Name: "a", Value: "1"}}
	input := NewRowInput(fields...)
	fields[0].Value = "changed"

	got := input.Fields()
	got[0].Value = "changed again"

	if v, _ := input.Get("a"); v != "1" {
		t.Fatalf("input was mutated, got %q", v)
	}
}

func TestRowProjectKeepsRowOrder(t *testing.T) {
	row := Row{Number: 2, Fields: []Field{
		{Name: "Product", Value: "Lamp"},
		{Name: "Certificate", Value: "CE"},
		{Name: "Notes", Value: ""},
	}}

	got := row.Project([]string{"Notes", "Product", "Unknown"})
	if want := []string{"Product", "Notes"}; !reflect.DeepEqual(got.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", got.Keys(), want)
	}
	if got := row.Project(nil); got.Len() != 0 {
		t.Fatalf("expected empty projection, got %d fields", got.Len())
	}
}

func TestRowRangeContains(t *testing.T) {
	tests := []struct {
		rng    RowRange
		number int
		want   bool
	}{
		{RowRange{}, 100, true},
		{RowRange{Start: 3}, 2, false},
		{RowRange{Start: 3}, 3, true},
		{RowRange{End: 5}, 5, true},
		{RowRange{End: 5}, 6, false},
		{RowRange{Start: 3, End: 5}, 4, true},
	}
	for _, tt := range tests {
		if got := tt.rng.Contains(tt.number); got != tt.want {
			t.Errorf("%+v.Contains(%d) = %v, want %v", tt.rng, tt.number, got, tt.want)
		}
	}
}
