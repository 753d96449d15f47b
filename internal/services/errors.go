package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks lookups that produced no result (unresolvable reference,
	// missing transcript side file, unknown episode).
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks operations that ran past their polling deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures that are expected to succeed on a later pass.
	ErrTransient = errors.New("transient failure")
	// ErrConfiguration marks startup problems that must abort the process.
	ErrConfiguration = errors.New("configuration error")
	// ErrExternal marks terminal failures reported by an external provider.
	ErrExternal = errors.New("external service error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
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
