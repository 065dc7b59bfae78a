package billing

import (
	"context"
	"time"
)

// Notifier delivers billing notifications to an organization's contact
// address. Delivery failures are logged by callers, never surfaced to the
// payment processor.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Sends run detached from the request that triggered them, bounded by their
// own deadline so a slow mail server cannot hold up a webhook response.
const notifySendTimeout = 10 * time.Second
