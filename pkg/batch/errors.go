package batch

import "errors"

// Error kinds surfaced to a batch's caller. Redirects and loading never escape the executor; the
// rest surface to the batch's caller.
var (
	ErrAlreadyExecuted  = errors.New("elika batch: already executed")
	ErrShuttingDown     = errors.New("elika batch: shutting down")
	ErrConnectionFailed = errors.New("elika batch: could not obtain a connection")
	ErrWriteFailed      = errors.New("elika batch: write failed before server acknowledgment")
	ErrResponseTimeout  = errors.New("elika batch: server did not reply within the response timeout")
	ErrOperationTimeout = errors.New("elika batch: retries exhausted before a response was observed")
	ErrCancelled        = errors.New("elika batch: cancelled")
)

// ServerError wraps an error reply the wire codec already parsed; it passes
// through unchanged.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }
