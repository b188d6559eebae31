package driven

import (
	"context"
	"encoding/json"
)

// ToolCaller is the proxy's view of the tool server: issue a named tool
// call and get back its raw JSON result, or know up front that the
// backend has given up restarting. The only implementation is the
// toolclient Supervisor, but the proxy depends on this port rather
// than importing that adapter directly.
type ToolCaller interface {
	Call(ctx context.Context, tool string, arguments any) (json.RawMessage, error)
	Unavailable() bool
}
