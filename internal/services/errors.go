package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient cluster error")
	ErrTimeout       = errors.New("timeout")
	ErrVerification  = errors.New("verification error")
	ErrExternalTool  = errors.New("external tool error")
	ErrNotFound      = errors.New("not found")
)

// ErrorClass names the taxonomy bucket of a stage failure.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassConfiguration ErrorClass = "configuration"
	ClassTransient     ErrorClass = "transient"
	ClassTimeout       ErrorClass = "timeout"
	ClassVerification  ErrorClass = "verification"
	ClassExternalTool  ErrorClass = "external_tool"
	ClassNotFound      ErrorClass = "not_found"
	ClassCanceled      ErrorClass = "canceled"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error onto its taxonomy bucket. Configuration errors win
// over every other marker because they always abort the run.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrTimeout):
		return ClassTimeout
	case errors.Is(err, ErrVerification):
		return ClassVerification
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrExternalTool):
		return ClassExternalTool
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	default:
		return ClassTransient
	}
}

// IsConfiguration reports whether err must abort the run without retrying.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
