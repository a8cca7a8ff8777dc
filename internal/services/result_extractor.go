package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blagoySimandov/certmapper/internal/models"
)

var (
	ErrNoJSONObject = errors.New("no JSON object in reply")
)

// Extraction is the outcome of looking for a JSON object inside a free-text reply.
type Extraction struct {
	Object map[string]interface{}
	Err    error
}

func (e Extraction) Parsed() bool {
	return e.Err == nil
}

// ParseEmbeddedJSON takes the span from the first '{' to the last '}' and decodes it as an object.
// Replies with several brace regions, or stray braces in prose, are not handled.
// Numbers are kept as json.Number so large integers survive unchanged.
func ParseEmbeddedJSON(text string) Extraction {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return Extraction{Err: ErrNoJSONObject}
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return Extraction{Err: fmt.Errorf("failed to decode reply object: %w", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Extraction{Err: errors.New("failed to decode reply object: trailing data after object")}
	}
	if obj == nil {
		return Extraction{Err: ErrNoJSONObject}
	}
	return Extraction{Object: obj}
}

// ExtractResult returns the embedded object as-is, or a "Parse error" placeholder over fallbackKeys.
func ExtractResult(text string, fallbackKeys []string) models.RowResult {
	extraction := ParseEmbeddedJSON(text)
	if !extraction.Parsed() {
		return models.Placeholder(fallbackKeys, models.ParseError)
	}
	return models.RowResult(extraction.Object)
}
