package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so every layer propagates them the same way.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNetwork
	KindParse
	KindEmbedding
	KindStorage
	KindLLM
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNetwork:
		return "network_failure"
	case KindParse:
		return "parse_failure"
	case KindEmbedding:
		return "embedding_failure"
	case KindStorage:
		return "storage_failure"
	case KindLLM:
		return "llm_failure"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error. A nil err still yields a non-nil error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind found in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind != KindUnknown {
				return e.Kind
			}
			err = e.Err
			continue
		}
		break
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
