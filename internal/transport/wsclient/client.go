/*
Package wsclient implements the roster transport over a WebSocket connection to the registrar.

A Client owns one connection and runs a read pump, which dispatches inbound envelopes to the
registered handlers, and a write pump, which serializes outbound frames and keeps the
connection alive with pings.
*/
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatroster/internal/app/wire"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed between two frames from the registrar.
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the registrar.
	maxMessageSize = 1 << 16

	// capacity of the outbound queue.
	sendQueueSize = 64
)

// Client is a people.Transport backed by a WebSocket connection.
type Client struct {
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be written.
	send chan []byte

	// closed when the client shuts down, for whatever reason.
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	handlers map[string][]func(json.RawMessage)

	logger zerolog.Logger
}

// Dial connects to the registrar at url and starts the pumps.
// header may carry e.g. an Authorization token and may be nil.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial registrar %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		handlers: make(map[string][]func(json.RawMessage)),
		logger:   logx.Component("wsclient").With().Str("url", url).Logger(),
	}

	go c.writePump()
	go c.readPump()

	c.logger.Info().Msg("Connected to registrar.")
	return c, nil
}

// Emit queues a message for the registrar.
func (c *Client) Emit(msgType string, payload any) error {
	env, err := wire.NewEnvelope(wire.MessageType(msgType), payload)
	if err != nil {
		return err
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}

	select {
	case <-c.done:
		return errs.NewError(errs.ErrTransportClosed)
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errs.NewError(errs.ErrTransportClosed)
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Str("msg_type", msgType).Msg("Send queue full, dropping message")
		return errors.New("wsclient: send queue full")
	}
}

// On registers handler for inbound messages of msgType.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], handler)
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// readPump reads frames until the connection fails and dispatches them to handlers.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in readPump")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Registrar connection closed unexpectedly")
			}
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error().Err(err).Msg("Failed to extend read deadline")
			return
		}

		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Registrar sent invalid JSON")
		return
	}

	c.mu.RLock()
	handlers := append(([]func(json.RawMessage))(nil), c.handlers[string(env.Type)]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug().Str("msg_type", string(env.Type)).Msg("No handler for message type")
		return
	}

	for _, h := range handlers {
		h(env.Payload)
	}
}

// writePump writes queued frames and periodic pings until the client is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in writePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing message")
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				c.Close()
				return
			}

		case <-c.done:
			closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
			if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to send close message")
			}
			return
		}
	}
}
