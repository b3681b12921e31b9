// Package connlog attaches a correlation id to each inbound WebSocket
// connection's log lines, so a single client's upgrade, reads, and
// eventual close can be grepped out of the shared structured log stream.
//
// Grounded on streamspace-dev-streamspace's request-id middleware
// (api/internal/middleware/request_id.go): generate a UUIDv4 per
// connection, carry it as a structured field rather than a context key
// mechanism we don't have (there is no *gin.Context here, just a
// *zap.SugaredLogger passed down the call chain).
package connlog

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ForConnection returns a child logger tagged with a fresh connection id,
// under the given field name (e.g. "connId" or "dashConnId").
func ForConnection(base *zap.SugaredLogger, field string) *zap.SugaredLogger {
	return base.With(field, uuid.NewString())
}
