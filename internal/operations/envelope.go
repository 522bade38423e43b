package operations

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haasonsaas/opsassist/internal/datetime"
)

// Data type discriminants carried in Envelope.DataType.
const (
	DataNotFound = "not_found"
)

// UnsupportedPhrase is the fixed wording attached to unsupported results.
const UnsupportedPhrase = "처리할 수 없는 요청입니다"

// Envelope is the serialized payload of every operation result.
type Envelope struct {
	Message     string          `json:"message"`
	DataType    string          `json:"dataType,omitempty"`
	Data        any             `json:"data,omitempty"`
	Count       *int            `json:"count,omitempty"`
	Summary     any             `json:"summary,omitempty"`
	Period      *datetime.Range `json:"period,omitempty"`
	Store       *StoreScope     `json:"store,omitempty"`
	Candidates  []Candidate     `json:"candidates,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	Error       string          `json:"error,omitempty"`
	Unsupported bool            `json:"unsupported,omitempty"`
}

// Candidate is a near match offered when a lookup is ambiguous.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

func list[T any](dataType, message string, rows []T) *Envelope {
	if rows == nil {
		rows = []T{}
	}
	n := len(rows)
	return &Envelope{Message: message, DataType: dataType, Data: rows, Count: &n}
}

func notFound(message string, candidates []Candidate) *Envelope {
	zero := 0
	return &Envelope{Message: message, DataType: DataNotFound, Data: []any{}, Count: &zero, Candidates: candidates}
}

func (e *Envelope) encode() json.RawMessage {
	data, err := json.Marshal(e)
	if err != nil {
		fallback, _ := json.Marshal(Envelope{Message: "결과를 직렬화하지 못했습니다", Error: err.Error()})
		return fallback
	}
	return data
}

// inputError is a request-level validation failure.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is a validation failure.
func IsInputError(err error) bool {
	var ie *inputError
	return errors.As(err, &ie)
}
