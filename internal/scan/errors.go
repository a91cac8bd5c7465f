package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the scan id was never issued or its retention
	// window has expired, never that the scan simply has not progressed.
	ErrNotFound = errors.New("scan not found")

	// ErrNotReady means results were requested while the scan is still
	// initiated or scanning.
	ErrNotReady = errors.New("scan not ready")

	ErrAlreadyTerminal = errors.New("scan already finished")
)

// FailedError carries the stored error of a failed scan.
type FailedError struct {
	ScanID string
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("scan %s failed: %s", e.ScanID, e.Reason)
}
