package bretterlabs

import (
	"github.com/csufpsudocromis/bretter-labs/internal/core"
	"github.com/csufpsudocromis/bretter-labs/internal/fault"
	"github.com/csufpsudocromis/bretter-labs/internal/ingest"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrNotFound is returned when a requested record does not exist (or is
	// owned by someone else, which is deliberately indistinguishable).
	ErrNotFound = fault.ErrNotFound

	// ErrTemplateDisabled is returned by StartLab and RestartInstance when
	// the template exists but is not enabled.
	ErrTemplateDisabled = core.ErrTemplateDisabled

	// ErrHelperNotReady is returned by IngestImage when the transfer helper
	// never became ready within the configured timeout.
	ErrHelperNotReady = ingest.ErrHelperNotReady

	// ErrTransferFailed is returned by IngestImage when a chunk could not be
	// written after all attempts.
	ErrTransferFailed = ingest.ErrTransferFailed

	// ErrValidationFailed is returned by IngestImage when the transferred
	// bytes do not form a usable image. No image record should be created.
	ErrValidationFailed = ingest.ErrValidationFailed

	// ErrConversionFailed is returned by IngestImage when raw conversion
	// failed. The transferred source remains on the volume untouched.
	ErrConversionFailed = ingest.ErrConversionFailed
)

// AdmissionError is the typed rejection returned by StartLab. Its Reason is
// suitable for showing to the requesting user verbatim.
type AdmissionError = fault.AdmissionError

// Admission rejection reasons carried in AdmissionError.Reason.
const (
	ReasonExistingLab  = core.ReasonExistingLab
	ReasonClusterLimit = core.ReasonClusterLimit
	ReasonPerUserLimit = core.ReasonPerUserLimit
)

// IsAdmissionRejected reports whether err is (or wraps) an AdmissionError.
func IsAdmissionRejected(err error) bool {
	return fault.IsAdmissionRejected(err)
}
