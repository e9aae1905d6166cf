package ragErrors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrExtractionFailed: the binary could not be parsed. Terminal for the document.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrEmptyDocument: parsing worked but no text survived trimming. Terminal for the document.
	ErrEmptyDocument = errors.New("no text extracted from document")

	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrGenerationProvider = errors.New("generation provider error")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")

	ErrNoEvidence = errors.New("no evidence found")

	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

// IsTerminalIngestion reports errors that end a document's ingestion for good.
func IsTerminalIngestion(err error) bool {
	return errors.Is(err, ErrExtractionFailed) || errors.Is(err, ErrEmptyDocument)
}

// IsRetryable classifies provider errors the way the google clients surface them.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}
