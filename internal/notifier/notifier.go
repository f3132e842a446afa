package notifier

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by the disabled notifier. The sweep records it
// like any other send failure and leaves the notification flag unset, so the
// warning is retried once the transport is configured.
var ErrNotConfigured = errors.New("smtp transport not configured")

// Notifier sends a single expiry warning. Implementations return an error
// instead of panicking and do not retry; re-polling on the next sweep is the
// retry mechanism.
type Notifier interface {
	Notify(ctx context.Context, address, filename string, expiryTime time.Time) error
}
