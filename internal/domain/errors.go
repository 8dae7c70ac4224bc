package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecordNotFound is returned by store mutations addressing an unknown ID.
var ErrRecordNotFound = errors.New("record not found")

// AcquisitionError means no usable local media file could be produced.
type AcquisitionError struct {
	VideoID string
	Reason  string
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire %s: %s", e.VideoID, e.Reason)
	}
	return fmt.Sprintf("acquire %s: %s: %v", e.VideoID, e.Reason, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// TransferError reports a byte transfer that exhausted its retry budget.
type TransferError struct {
	Offset   int64
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer at offset %d failed after %d attempt(s): %v", e.Offset, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ProcessingError reports remote processing failure or a processing timeout.
type ProcessingError struct {
	MediaID  string
	Status   string
	TimedOut bool
}

func (e *ProcessingError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("media %s: processing timed out (last status %q)", e.MediaID, e.Status)
	}
	return fmt.Sprintf("media %s: processing failed with status %q", e.MediaID, e.Status)
}

// PublishRejectedError is a business-level rejection carried by a successful HTTP response.
type PublishRejectedError struct {
	MediaID string
	Phase   string
}

func (e *PublishRejectedError) Error() string {
	return fmt.Sprintf("media %s: %s returned success=false", e.MediaID, e.Phase)
}

// UnrecordedPublishError means the media went live but the store could not
// record it. The record must not be retried until an operator reconciles it.
type UnrecordedPublishError struct {
	VideoID  string
	RemoteID string
	Err      error
}

func (e *UnrecordedPublishError) Error() string {
	return fmt.Sprintf("published %s as %s but could not record it: %v", e.VideoID, e.RemoteID, e.Err)
}

func (e *UnrecordedPublishError) Unwrap() error { return e.Err }

// ConfigurationError lists required settings that are missing.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}
