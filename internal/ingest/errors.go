package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying ingestion failures. Chain-fatal markers end
// the whole chain without retry; everything else is treated as transient and
// left to the bus redelivery budget.
var (
	ErrProjectNotFound = errors.New("project does not exist")
	ErrParse           = errors.New("malformed manifest")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ChainFatal reports whether an error ends the chain: unknown project and
// unparseable input are terminal, everything else may be retried.
func ChainFatal(err error) bool {
	return errors.Is(err, ErrProjectNotFound) || errors.Is(err, ErrParse)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "ingestion failure"
	}
	return strings.Join(parts, ": ")
}
