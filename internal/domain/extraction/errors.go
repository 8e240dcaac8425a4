package extraction

import (
	"fmt"

	"github.com/google/uuid"
)

// InsufficientTextRemediation is the user-facing next step when a PDF yields
// too little readable text. It must always name the concrete alternatives.
const InsufficientTextRemediation = "please export the accounts as CSV or Excel from your accounting software, or enter the figures manually"

// NotFoundError indicates the upload id is unknown. Fatal, no retry.
type NotFoundError struct {
	UploadID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("upload %s not found", e.UploadID)
}

// StorageError indicates the uploaded file could not be retrieved.
// Fatal for this run, retryable by resubmission.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to retrieve file %q from storage: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// InsufficientTextError indicates PDF text recovery fell below the quality
// gate. The message carries the remediation options verbatim.
type InsufficientTextError struct {
	Recovered int // characters of text recovered
}

func (e *InsufficientTextError) Error() string {
	return fmt.Sprintf("could not extract enough readable text from the PDF (%d characters recovered); %s", e.Recovered, InsufficientTextRemediation)
}

// ProviderError indicates the completion provider was unreachable or
// returned a non-2xx response. Fatal for this run, retryable.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("extraction provider request failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedExtractionError indicates the provider response could not be
// coerced into the expected JSON shape even after repair. The raw response
// is retained for operator diagnosis.
type MalformedExtractionError struct {
	RawResponse string
	Err         error
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("extraction response is not parseable JSON: %v", e.Err)
}

func (e *MalformedExtractionError) Unwrap() error { return e.Err }
