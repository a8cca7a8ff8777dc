package models

import "fmt"

const (
	KeyNewCertificateName = "newCertificateName"
	KeyRemark             = "remark"
)

// Diagnostic values written in place of agent output when a row fails.
const (
	RunFailed   = "Run failed"
	ParseError  = "Parse error"
	NoResponse  = "No response"
	ErrorPrefix = "Error: "
)

// RowResult is whatever object the agent returned for a row. Callers read the two
// well-known keys through CertificateName and Remark and ignore anything else.
type RowResult map[string]interface{}

// Placeholder maps every key to the same diagnostic value.
func Placeholder(keys []string, value string) RowResult {
	result := make(RowResult, len(keys))
	for _, k := range keys {
		result[k] = value
	}
	return result
}

func ErrorPlaceholder(keys []string, err error) RowResult {
	return Placeholder(keys, ErrorPrefix+err.Error())
}

func (r RowResult) CertificateName() string {
	return r.stringValue(KeyNewCertificateName)
}

func (r RowResult) Remark() string {
	return r.stringValue(KeyRemark)
}

func (r RowResult) stringValue(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// IsPlaceholder reports whether every value is one of the diagnostic strings.
func (r RowResult) IsPlaceholder() bool {
	if len(r) == 0 {
		return false
	}
	for _, v := range r {
		s, ok := v.(string)
		if !ok {
			return false
		}
		switch {
		case s == RunFailed, s == ParseError, s == NoResponse:
		case len(s) >= len(ErrorPrefix) && s[:len(ErrorPrefix)] == ErrorPrefix:
		default:
			return false
		}
	}
	return true
}

// Progress is the (completed, total) pair reported while a batch runs.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

func (p Progress) Done() bool {
	return p.Completed >= p.Total
}

type ProgressFunc func(completed, total int)
