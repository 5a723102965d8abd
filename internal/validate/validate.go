// Package validate maps raw user text to typed profile values or a rejection message.
package validate

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
)

// Rejection messages shown to the user when an answer is not accepted.
const (
	NameRejection = "Please enter a name that contains at least one character."
	AgeRejection  = "Please enter an age between 18 and 120."
)

// Result is the outcome of validating one answer. Message is set only when Valid is false.
type Result[T any] struct {
	Valid   bool
	Value   T
	Message string
}

func accept[T any](v T) Result[T] {
	return Result[T]{Valid: true, Value: v}
}

func reject[T any](message string) Result[T] {
	return Result[T]{Message: message}
}

// Name accepts any input with at least one non-space character, trimmed.
func Name(raw string) Result[string] {
	name := strings.TrimSpace(raw)
	if name == "" {
		return reject[string](NameRejection)
	}
	return accept(name)
}

// Age recognizes numbers written with digits or English words and accepts the first one
// within MinAge..MaxAge.
func Age(raw string) Result[int] {
	for _, candidate := range RecognizeNumbers(raw) {
		if candidate.Integer && candidate.Value >= models.MinAge && candidate.Value <= models.MaxAge {
			return accept(int(candidate.Value))
		}
	}
	return reject[int](AgeRejection)
}

// Address accepts the input unchanged.
func Address(raw string) Result[string] {
	return accept(raw)
}

// String implements fmt.Stringer for log output.
func (r Result[T]) String() string {
	if r.Valid {
		return fmt.Sprintf("valid(%v)", r.Value)
	}
	return fmt.Sprintf("invalid(%s)", r.Message)
}
