package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskhelp/deskbot/internal/logging"
)

// FailureKind splits sink failures into the two classes the worker acts on.
type FailureKind int

const (
	// Transient failures (rate limits, 5xx, network) are retried with backoff.
	Transient FailureKind = iota
	// Permanent failures abandon the batch so the worker never stalls.
	Permanent
)

// SinkError is the only error type a Sink may return from AppendBatch.
// Code carries the provider status for operational logs.
type SinkError struct {
	Kind FailureKind
	Code string
	Err  error
}

func (e *SinkError) Error() string {
	kind := "transient"
	if e.Kind == Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("sink %s failure (%s): %v", kind, e.Code, e.Err)
	}
	return fmt.Sprintf("sink %s failure (%s)", kind, e.Code)
}

func (e *SinkError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried. Errors that are not
// SinkError are treated as permanent: an unclassified failure must not stall
// the worker forever.
func IsTransient(err error) bool {
	var se *SinkError
	return errors.As(err, &se) && se.Kind == Transient
}

// Sink is the durable destination for completed conversations.
type Sink interface {
	// Ready reports whether the sink can currently accept writes. The worker
	// leaves the queue untouched while the sink is not ready.
	Ready() bool

	// AppendBatch writes rows as one unit. It returns nil on success or a
	// *SinkError describing the failure. Implementations must not partially
	// apply a batch in a way that a retry would duplicate rows.
	AppendBatch(ctx context.Context, rows []Row) error
}

// NopSink logs and discards rows. Used when no sink is configured so the
// flush path stays alive; the loss is deliberate and visible in the logs.
type NopSink struct{}

func (NopSink) Ready() bool { return true }

func (NopSink) AppendBatch(_ context.Context, rows []Row) error {
	logging.Warnf("no sink configured, dropping %d conversation rows", len(rows))
	return nil
}
