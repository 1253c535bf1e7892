package people

import "encoding/json"

// Transport is the bidirectional message channel to the registrar.
// Handlers may be invoked from any goroutine.
type Transport interface {
	// Emit sends a named message with a JSON-encodable payload.
	Emit(msgType string, payload any) error

	// On registers handler for every inbound message of msgType.
	On(msgType string, handler func(payload json.RawMessage))
}
