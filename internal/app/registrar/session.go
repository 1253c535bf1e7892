/*
Package registrar implements the server side of the roster protocol.

This file defines the Session struct, representing one client WebSocket connection. It runs
the read and write pumps and forwards inbound envelopes to the Registrar loop.
*/
package registrar

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatroster/internal/app/wire"
	"chatroster/internal/pkg/errs"
	"chatroster/internal/pkg/logx"
	"chatroster/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192
)

// Session is one attached client connection.
type Session struct {
	id        string
	registrar *Registrar
	conn      *websocket.Conn

	// a buffered channel used to queue frames waiting to be sent to the client.
	// Sends and the final close happen only on the Registrar loop.
	send       chan []byte
	sendClosed bool

	// server ids registered through this session, forgotten when it detaches.
	owned []string

	logger zerolog.Logger
}

// NewSession wraps an upgraded connection.
func NewSession(registrar *Registrar, conn *websocket.Conn) *Session {
	id := randx.ServerID()

	return &Session{
		id:        id,
		registrar: registrar,
		conn:      conn,
		send:      make(chan []byte, 256),
		logger:    logx.Component("Session").With().Str("session_id", id).Logger(),
	}
}

// ReadPump reads envelopes from the connection until it fails, then detaches the session.
func (s *Session) ReadPump() {
	defer func() {
		s.registrar.detach(s)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Session connection close error")
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.logger.Warn().Err(err).Msg("Client sent invalid JSON")
			continue
		}

		s.registrar.submit(s, env)
	}
}

// WritePump writes queued frames and periodic pings until the send queue is closed.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Session connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					s.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Error().Err(err).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// sendEnvelope marshals payload into an envelope and queues it for the client.
func (s *Session) sendEnvelope(msgType wire.MessageType, payload any) error {
	if s.sendClosed {
		return errs.NewError(errs.ErrTransportClosed)
	}

	env, err := wire.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}

	select {
	case s.send <- frame:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send channel full, dropping message")
		return fmt.Errorf("session send queue full")
	}
}

// SendError reports a refused request to the client.
func (s *Session) SendError(err error) {
	payload := wire.ErrorPayload{Code: errs.ErrUnknown, Message: "Internal server error."}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		payload.Code = customErr.Code
		payload.Message = customErr.Message
	}

	if sendErr := s.sendEnvelope(wire.TypeError, payload); sendErr != nil {
		s.logger.Error().Err(sendErr).Msg("Failed to queue error message")
	}
}

func (s *Session) closeSend() {
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	close(s.send)
}
