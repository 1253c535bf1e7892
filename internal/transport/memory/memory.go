/*
Package memory provides an in-process transport for the roster model.

It records every emitted message and lets the caller deliver inbound messages directly,
which makes it the transport of choice for tests and for running a client without a
registrar. An optional Responder answers emitted messages the way a registrar would.
*/
package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chatroster/internal/app/wire"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/randx"
)

// Responder is invoked for every message emitted on the transport.
type Responder func(t *Transport, env wire.Envelope)

// Transport is an in-memory people.Transport.
type Transport struct {
	mu        sync.RWMutex
	handlers  map[string][]func(json.RawMessage)
	emitted   []wire.Envelope
	responder Responder
	closed    bool
}

// New returns an open transport with no handlers.
func New() *Transport {
	return &Transport{handlers: make(map[string][]func(json.RawMessage))}
}

// SetResponder installs r as the answering side of the transport.
func (t *Transport) SetResponder(r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = r
}

// Emit records the message and hands it to the responder, if any.
func (t *Transport) Emit(msgType string, payload any) error {
	env, err := wire.NewEnvelope(wire.MessageType(msgType), payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errs.NewError(errs.ErrTransportClosed)
	}
	t.emitted = append(t.emitted, env)
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		responder(t, env)
	}
	return nil
}

// On registers handler for inbound messages of msgType.
func (t *Transport) On(msgType string, handler func(json.RawMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[msgType] = append(t.handlers[msgType], handler)
}

// Deliver dispatches an inbound message to the handlers registered for msgType.
func (t *Transport) Deliver(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return errs.NewError(errs.ErrTransportClosed)
	}
	handlers := append(([]func(json.RawMessage))(nil), t.handlers[msgType]...)
	t.mu.RUnlock()

	for _, h := range handlers {
		h(raw)
	}
	return nil
}

// Emitted returns a copy of every message emitted so far.
func (t *Transport) Emitted() []wire.Envelope {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]wire.Envelope(nil), t.emitted...)
}

// Close makes further Emit and Deliver calls fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// AutoConfirm returns a Responder that confirms every register-user request after delay
// with a fresh server id and the requested presentation. A zero delay confirms synchronously.
func AutoConfirm(delay time.Duration) Responder {
	return func(t *Transport, env wire.Envelope) {
		if env.Type != wire.TypeRegisterUser {
			return
		}

		var request wire.RegisterUserPayload
		if err := json.Unmarshal(env.Payload, &request); err != nil {
			return
		}

		confirm := func() {
			_ = t.Deliver(string(wire.TypeUserRegistered), []wire.UserRegisteredPayload{{
				ClientID:     request.ClientID,
				ServerID:     randx.ServerID(),
				Presentation: request.Presentation,
			}})
		}

		if delay <= 0 {
			confirm()
			return
		}
		time.AfterFunc(delay, confirm)
	}
}
