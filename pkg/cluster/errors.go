package cluster

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShutdown is returned by Acquire once the pool has started shutting down.
	ErrShutdown = errors.New("elika cluster: pool is shutting down")

	// ErrConnectionFailed means a connection could not be obtained within the
	// acquisition budget of a single attempt.
	ErrConnectionFailed = errors.New("elika cluster: could not obtain a connection")

	// ErrEntryFrozen is returned by warm-up when the entry is quarantined.
	ErrEntryFrozen = errors.New("elika cluster: entry is frozen")
)

// PoolExhaustedError carries the host breakdown from a failed acquisition:
// frozen hosts and saturated hosts are reported separately so callers can tell
// "everything is down" from "everything is busy".
type PoolExhaustedError struct {
	Frozen    []string
	Saturated []string
}

func (e *PoolExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("elika cluster: pool exhausted")
	if len(e.Frozen) > 0 {
		b.WriteString(fmt.Sprintf(" frozen=%v", e.Frozen))
	}
	if len(e.Saturated) > 0 {
		b.WriteString(fmt.Sprintf(" saturated=%v", e.Saturated))
	}
	return b.String()
}

func newPoolExhausted(frozen, saturated []string) error {
	return &PoolExhaustedError{Frozen: frozen, Saturated: saturated}
}
