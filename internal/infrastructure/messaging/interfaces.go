// Package messaging provides outbound action dispatch and the operator
// dashboard broadcaster.
package messaging

import (
	"context"

	"github.com/botforgehq/botforge-go/internal/domain/engine"
)

// Transport delivers one action to the chat platform. Implementations wrap
// the Telegram (or other) API client; delivery failures are the transport's
// to report, never the engine's to retry.
type Transport interface {
	Deliver(ctx context.Context, tenantID string, action engine.Action) error
}
